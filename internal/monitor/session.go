// Package monitor drives the processing engine while a carve is running and
// finishes the run once carving has ended.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/afero"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/fileprocessor"
	"github.com/moyu-x/carve-refinery/internal/logger"
	"github.com/moyu-x/carve-refinery/pkg/auditlog"
	"github.com/moyu-x/carve-refinery/pkg/history"
	"github.com/moyu-x/carve-refinery/pkg/organizer"
	"github.com/moyu-x/carve-refinery/pkg/rules"
	"github.com/moyu-x/carve-refinery/pkg/scanner"
)

// Recorder 保存运行记录，通常是 *history.Store
type Recorder interface {
	Record(rec *history.RunRecord) error
}

// Report 一次运行结束后的结果
type Report struct {
	RunID      string
	Mode       string
	Root       string
	Summary    internal.RunSummary
	Processed  []int
	Reorganize *organizer.Result
	AuditLog   string
	SummaryCSV string
	StartedAt  time.Time
	FinishedAt time.Time
}

type Option func(*Session)

// WithPolicy 替换判断目录是否写完的策略
func WithPolicy(p scanner.CompletionPolicy) Option {
	return func(s *Session) { s.policy = p }
}

func WithHistory(r Recorder) Option {
	return func(s *Session) { s.recorder = r }
}

// WithDedupe 整理时删除与目标内容相同的文件
func WithDedupe(enabled bool) Option {
	return func(s *Session) { s.dedupe = enabled }
}

// WithSniff 整理时根据文件头识别无扩展名文件
func WithSniff(enabled bool) Option {
	return func(s *Session) { s.sniff = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// Session 一次监控或一次性处理的运行上下文，拥有目录登记表和统计
type Session struct {
	fs       afero.Fs
	policy   scanner.CompletionPolicy
	recorder Recorder
	now      func() time.Time
	pool     *ants.Pool // 单个工作协程，整次运行作为一个任务执行

	reorganize bool
	batchSize  int
	dedupe     bool
	sniff      bool
	logging    bool
	logDir     string
	reporter   internal.ProgressReporter

	mu       sync.Mutex
	state    State
	running  bool
	finalize chan struct{}
	done     chan struct{}
	once     sync.Once

	run *run
}

// run 单次运行的状态，每次开始都重新创建
type run struct {
	id        string
	mode      string
	root      string
	rules     rules.Rules
	proc      *fileprocessor.Processor
	audit     *auditlog.Writer
	startedAt time.Time

	report Report
	err    error
}

func New(fs afero.Fs, opts ...Option) (*Session, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}

	s := &Session{
		fs:        fs,
		policy:    scanner.NewestOpenPolicy{},
		now:       time.Now,
		batchSize: internal.DefaultBatchSize,
		reporter:  internal.NopReporter,
	}
	for _, opt := range opts {
		opt(s)
	}

	pool, err := ants.NewPool(1, ants.WithPanicHandler(s.recoverRun))
	if err != nil {
		return nil, fmt.Errorf("创建工作池失败: %w", err)
	}
	s.pool = pool
	return s, nil
}

// SetReorganizeOptions 设置结束时是否整理文件，在下一次运行开始时生效
func (s *Session) SetReorganizeOptions(enabled bool, batchSize int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reorganize = enabled
	if batchSize > 0 {
		s.batchSize = batchSize
	} else {
		s.batchSize = internal.DefaultBatchSize
	}
}

// SetLogging 设置是否写入逐文件 CSV 日志，logDir 为空时写入输出根目录
func (s *Session) SetLogging(enabled bool, logDir string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logging = enabled
	s.logDir = logDir
}

// SetProgressReporter 设置进度回调，回调在工作协程中执行
func (s *Session) SetProgressReporter(r internal.ProgressReporter) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r == nil {
		r = internal.NopReporter
	}
	s.reporter = r
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// StartMonitoring 开始按 interval 轮询 root，直到 Finalize 或 ctx 取消
func (s *Session) StartMonitoring(ctx context.Context, root string, r rules.Rules, interval time.Duration) error {
	if interval <= 0 {
		interval = internal.DefaultPollInterval
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return internal.ErrBusy
	}

	rn, err := s.begin(root, r, ModeWatch)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	finalize := make(chan struct{})
	done := make(chan struct{})
	s.run = rn
	s.running = true
	s.state = StateIdle
	s.finalize = finalize
	s.done = done
	s.once = sync.Once{}
	s.mu.Unlock()

	logger.Get().Info().
		Str("root", root).
		Dur("interval", interval).
		Strs("keep", r.KeepList()).
		Strs("exclude", r.ExcludeList()).
		Msg("开始监控")

	return s.launch(rn, done, func() (*organizer.Result, error) {
		return s.watch(ctx, rn, interval, finalize)
	})
}

// Finalize 通知会话 carve 已结束：处理最新目录、整理文件，然后结束
func (s *Session) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.finalize == nil {
		return internal.ErrNotRunning
	}

	s.once.Do(func() {
		logger.Get().Info().Msg("收到结束信号")
		close(s.finalize)
	})
	return nil
}

// Wait 等待监控结束并返回结果
func (s *Session) Wait() (Report, error) {
	s.mu.Lock()
	rn, done := s.run, s.done
	s.mu.Unlock()

	if done == nil {
		return Report{}, internal.ErrNotRunning
	}

	<-done
	return s.result(rn)
}

// ProcessNow 一次性处理 root 下的所有目录（包括最新目录），同步返回结果
func (s *Session) ProcessNow(ctx context.Context, root string, r rules.Rules) (Report, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return Report{}, internal.ErrBusy
	}

	rn, err := s.begin(root, r, ModeProcess)
	if err != nil {
		s.mu.Unlock()
		return Report{}, err
	}
	done := make(chan struct{})
	s.run = rn
	s.running = true
	s.state = StateFinalizing
	s.finalize = nil
	s.done = done
	s.mu.Unlock()

	logger.Get().Info().Str("root", root).Msg("开始一次性处理")

	if err := s.launch(rn, done, func() (*organizer.Result, error) {
		return s.finalPass(ctx, rn)
	}); err != nil {
		return Report{}, err
	}

	<-done
	return s.result(rn)
}

// Close 释放工作池
func (s *Session) Close() {
	s.pool.Release()
}

// begin 创建新的处理器和登记表，调用方持有锁
func (s *Session) begin(root string, r rules.Rules, mode string) (*run, error) {
	proc, err := fileprocessor.New(s.fs, root, r)
	if err != nil {
		return nil, err
	}
	proc.Policy = s.policy
	proc.Reporter = s.reporter
	proc.Now = s.now

	rn := &run{
		id:        uuid.New().String(),
		mode:      mode,
		root:      root,
		rules:     r,
		proc:      proc,
		startedAt: s.now(),
	}

	if s.logging {
		dir := s.logDir
		if dir == "" {
			dir = root
		}
		audit, err := auditlog.Open(s.fs, dir, rn.startedAt)
		if err != nil {
			return nil, err
		}
		proc.Audit = audit
		rn.audit = audit
		logger.Get().Info().Str("path", audit.Path()).Msg("处置日志已创建")
	}

	return rn, nil
}

// launch 把整次运行作为一个任务交给工作池，任务正常结束后关闭 done
// 任务 panic 时由 recoverRun 结束运行并关闭 done
func (s *Session) launch(rn *run, done chan struct{}, body func() (*organizer.Result, error)) error {
	err := s.pool.Submit(func() {
		reorg, err := body()
		s.end(rn, reorg, err)
		close(done)
	})
	if err == nil {
		return nil
	}

	if rn.audit != nil {
		rn.audit.Close()
	}

	s.mu.Lock()
	s.running = false
	s.state = StateIdle
	s.finalize = nil
	s.done = nil
	s.mu.Unlock()
	return fmt.Errorf("提交任务失败: %w", err)
}

// recoverRun 工作池的 panic 回调，把 panic 当作当前运行的错误结束运行
func (s *Session) recoverRun(p interface{}) {
	s.mu.Lock()
	rn, done := s.run, s.done
	s.mu.Unlock()

	logger.Get().Error().
		Interface("panic", p).
		Str("stack", string(debug.Stack())).
		Msg("处理任务 panic")

	if rn == nil || done == nil {
		return
	}

	s.end(rn, nil, fmt.Errorf("处理任务 panic: %v", p))
	close(done)
}

func (s *Session) result(rn *run) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rn.report, rn.err
}

// watch 轮询直到 Finalize 或 ctx 取消，在工作协程中执行
func (s *Session) watch(ctx context.Context, rn *run, interval time.Duration, finalize <-chan struct{}) (*organizer.Result, error) {
	for {
		s.observe(rn)

		if _, err := s.pass(ctx, rn, false); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			var accessErr *internal.FolderAccessError
			if !errors.As(err, &accessErr) {
				logger.Get().Error().Err(err).Msg("轮询失败")
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-finalize:
			timer.Stop()
			s.setState(StateFinalizing)
			return s.finalPass(ctx, rn)
		case <-timer.C:
		}
	}
}

// observe 看到第一个 carve 目录后进入 Watching
func (s *Session) observe(rn *run) {
	if s.State() != StateIdle {
		return
	}

	folders, err := scanner.ListFolders(s.fs, rn.root)
	if err != nil || len(folders) == 0 {
		return
	}

	s.setState(StateWatching)
	logger.Get().Info().Int("folders", len(folders)).Msg("发现 carve 目录，开始处理")
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// pass 执行一次扫描
func (s *Session) pass(ctx context.Context, rn *run, includeNewest bool) (internal.RunSummary, error) {
	summary, err := rn.proc.ProcessOnce(ctx, includeNewest)

	if err == nil && summary.FoldersProcessed > 0 {
		logger.Get().Info().
			Int("folders", summary.FoldersProcessed).
			Int("kept", summary.FilesKept).
			Int("deleted", summary.FilesDeleted).
			Msg("本轮处理完成")
	}
	return summary, err
}

// finalPass 处理包括最新目录在内的所有目录，按需整理
func (s *Session) finalPass(ctx context.Context, rn *run) (*organizer.Result, error) {
	if _, err := s.pass(ctx, rn, true); err != nil {
		return nil, err
	}

	s.mu.Lock()
	enabled := s.reorganize
	org := organizer.New(s.fs, s.batchSize)
	org.Dedupe = s.dedupe
	org.SniffUnknown = s.sniff
	reporter := s.reporter
	s.mu.Unlock()

	if !enabled {
		return nil, nil
	}

	proc := rn.proc
	org.Progress = func(moved, total int) {
		reporter.Report(internal.Progress{
			FoldersSeen:    proc.FoldersSeen(),
			FilesProcessed: proc.FilesProcessed(),
			BytesKept:      proc.Summary.BytesKept,
			BytesDeleted:   proc.Summary.BytesDeleted,
			Activity:       fmt.Sprintf("Reorganizing %d/%d files", moved, total),
			Moved:          moved,
			ToMove:         total,
		})
	}

	result, err := org.Reorganize(ctx, rn.root, proc.KeptFiles)

	for _, path := range result.Removed {
		if ordinal, ok := scanner.ParseOrdinal(filepath.Base(path)); ok {
			proc.Registry.MarkReorganized(ordinal)
		}
	}
	return &result, err
}

// end 写入汇总、关闭日志、保存历史并进入 Done
func (s *Session) end(rn *run, reorg *organizer.Result, cause error) {
	finished := s.now()
	summary := rn.proc.Summary

	report := Report{
		RunID:      rn.id,
		Mode:       rn.mode,
		Root:       rn.root,
		Summary:    summary,
		Processed:  rn.proc.Registry.Processed(),
		Reorganize: reorg,
		StartedAt:  rn.startedAt,
		FinishedAt: finished,
	}

	if rn.audit != nil {
		report.AuditLog = rn.audit.Path()
		if err := rn.audit.Close(); err != nil {
			logger.Get().Error().Err(err).Msg("关闭处置日志失败")
		}
	}

	s.mu.Lock()
	summaryDir := rn.root
	if s.logging && s.logDir != "" {
		summaryDir = s.logDir
	}
	s.mu.Unlock()

	path, err := auditlog.WriteSummary(s.fs, summaryDir, auditlog.Summary{
		RunID:   rn.id,
		BaseDir: rn.root,
		Time:    finished,
		Result:  summary,
	})
	if err != nil {
		logger.Get().Error().Err(err).Msg("写入汇总失败")
	} else {
		report.SummaryCSV = path
	}

	if s.recorder != nil {
		rec := &history.RunRecord{
			RunID:            rn.id,
			Root:             rn.root,
			Mode:             rn.mode,
			KeepRules:        strings.Join(rn.rules.KeepList(), ","),
			ExcludeRules:     strings.Join(rn.rules.ExcludeList(), ","),
			FoldersProcessed: summary.FoldersProcessed,
			FilesKept:        summary.FilesKept,
			FilesDeleted:     summary.FilesDeleted,
			DeleteFailures:   len(summary.Failures),
			BytesKept:        summary.BytesKept,
			BytesDeleted:     summary.BytesDeleted,
			StartedAt:        rn.startedAt,
			FinishedAt:       finished,
		}
		if reorg != nil {
			rec.FilesMoved = reorg.Moved
		}
		if err := s.recorder.Record(rec); err != nil {
			logger.Get().Error().Err(err).Msg("保存运行记录失败")
		}
	}

	event := logger.Get().Info()
	if cause != nil {
		event = logger.Get().Warn().Err(cause)
	}
	event.
		Str("run_id", rn.id).
		Int("folders", summary.FoldersProcessed).
		Int("kept", summary.FilesKept).
		Int("deleted", summary.FilesDeleted).
		Int("failures", len(summary.Failures)).
		Msg("运行结束")

	s.mu.Lock()
	s.state = StateDone
	s.running = false
	rn.report = report
	rn.err = cause
	s.mu.Unlock()
}
