package monitor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/pkg/history"
	"github.com/moyu-x/carve-refinery/pkg/rules"
)

var fixedTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

const tick = 10 * time.Millisecond

type memRecorder struct {
	mu   sync.Mutex
	runs []*history.RunRecord
}

func (r *memRecorder) Record(rec *history.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, rec)
	return nil
}

func writeFile(t *testing.T, fs afero.Fs, path string, size int) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, make([]byte, size), 0644))
}

func exists(fs afero.Fs, path string) bool {
	ok, _ := afero.Exists(fs, path)
	return ok
}

func newSession(t *testing.T, fs afero.Fs, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedTime })}, opts...)
	s, err := New(fs, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestProcessNow(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.jpg", 100)
	writeFile(t, fs, "/out/recup_dir.1/b.tmp", 50)

	s := newSession(t, fs)
	report, err := s.ProcessNow(context.Background(), "/out", rules.New([]string{"jpg"}, nil))
	require.NoError(t, err)

	assert.Equal(t, ModeProcess, report.Mode)
	assert.Equal(t, 1, report.Summary.FilesKept)
	assert.Equal(t, int64(100), report.Summary.BytesKept)
	assert.Equal(t, 1, report.Summary.FilesDeleted)
	assert.Equal(t, int64(50), report.Summary.BytesDeleted)
	assert.Equal(t, []int{1}, report.Processed)
	assert.Nil(t, report.Reorganize)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, "/out/carve_refinery_summary_20240501_120000.csv", report.SummaryCSV)
	assert.True(t, exists(fs, report.SummaryCSV))
	assert.Equal(t, StateDone, s.State())
}

func TestProcessNow_Reorganize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.jpg", 1)
	writeFile(t, fs, "/out/recup_dir.1/b.jpg", 1)
	writeFile(t, fs, "/out/recup_dir.2/c.jpg", 1)
	writeFile(t, fs, "/out/recup_dir.2/d.tmp", 1)

	s := newSession(t, fs)
	s.SetReorganizeOptions(true, 2)

	report, err := s.ProcessNow(context.Background(), "/out", rules.New([]string{"jpg"}, nil))
	require.NoError(t, err)
	require.NotNil(t, report.Reorganize)
	assert.Equal(t, 3, report.Reorganize.Moved)

	assert.True(t, exists(fs, "/out/jpg/1/a.jpg"))
	assert.True(t, exists(fs, "/out/jpg/1/b.jpg"))
	assert.True(t, exists(fs, "/out/jpg/2/c.jpg"))
	assert.False(t, exists(fs, "/out/recup_dir.1"))
	assert.False(t, exists(fs, "/out/recup_dir.2"))
}

func TestProcessNow_RequiresRoot(t *testing.T) {
	s := newSession(t, afero.NewMemMapFs())
	_, err := s.ProcessNow(context.Background(), "", rules.New(nil, nil))
	assert.ErrorIs(t, err, internal.ErrConfiguration)
	assert.Equal(t, StateIdle, s.State())
}

func TestProcessNow_Logging(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.jpg", 10)
	writeFile(t, fs, "/out/recup_dir.1/b.tmp", 5)

	s := newSession(t, fs)
	s.SetLogging(true, "/logs")

	report, err := s.ProcessNow(context.Background(), "/out", rules.New([]string{"jpg"}, nil))
	require.NoError(t, err)

	assert.Equal(t, "/logs/carve_refinery_log_20240501_120000.csv", report.AuditLog)
	assert.Equal(t, "/logs/carve_refinery_summary_20240501_120000.csv", report.SummaryCSV)

	data, err := afero.ReadFile(fs, report.AuditLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/out/recup_dir.1/a.jpg")
	assert.Contains(t, string(data), "/out/recup_dir.1/b.tmp")
}

func TestProcessNow_RecordsUseSessionClock(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.jpg", 10)

	s := newSession(t, fs)
	s.SetLogging(true, "/logs")

	report, err := s.ProcessNow(context.Background(), "/out", rules.New([]string{"jpg"}, nil))
	require.NoError(t, err)

	data, err := afero.ReadFile(fs, report.AuditLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/out/recup_dir.1/a.jpg,jpg,kept,10,2024-05-01T12:00:00Z")
}

func TestProcessNow_SameSecondRunsKeepSeparateLogs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/a/recup_dir.1/x.jpg", 10)
	writeFile(t, fs, "/b/recup_dir.1/y.jpg", 20)

	s := newSession(t, fs)
	s.SetLogging(true, "/logs")
	r := rules.New([]string{"jpg"}, nil)

	first, err := s.ProcessNow(context.Background(), "/a", r)
	require.NoError(t, err)
	second, err := s.ProcessNow(context.Background(), "/b", r)
	require.NoError(t, err)

	assert.NotEqual(t, first.AuditLog, second.AuditLog)
	assert.NotEqual(t, first.SummaryCSV, second.SummaryCSV)

	firstLog, err := afero.ReadFile(fs, first.AuditLog)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(firstLog), "path,extension"))
	assert.Contains(t, string(firstLog), "/a/recup_dir.1/x.jpg")
	assert.NotContains(t, string(firstLog), "/b/recup_dir.1/y.jpg")

	firstSummary, err := afero.ReadFile(fs, first.SummaryCSV)
	require.NoError(t, err)
	assert.Contains(t, string(firstSummary), first.RunID)
	secondSummary, err := afero.ReadFile(fs, second.SummaryCSV)
	require.NoError(t, err)
	assert.Contains(t, string(secondSummary), second.RunID)
}

func TestProcessNow_ReporterPanicFailsRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.tmp", 10)
	writeFile(t, fs, "/out/recup_dir.1/b.tmp", 10)

	rec := &memRecorder{}
	s := newSession(t, fs, WithHistory(rec))
	s.SetProgressReporter(internal.ProgressFunc(func(internal.Progress) {
		panic("reporter broke")
	}))

	report, err := s.ProcessNow(context.Background(), "/out", rules.New([]string{"jpg"}, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reporter broke")
	assert.Equal(t, StateDone, s.State())
	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.Processed)
	require.Len(t, rec.runs, 1)

	_, waitErr := s.Wait()
	assert.Equal(t, err, waitErr)

	// 工作池在 panic 后仍可用
	s.SetProgressReporter(nil)
	again, err := s.ProcessNow(context.Background(), "/out", rules.New([]string{"jpg"}, nil))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, again.Processed)
	assert.False(t, exists(fs, "/out/recup_dir.1/b.tmp"))
}

func TestWatch_ReporterPanicFailsRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.tmp", 10)
	writeFile(t, fs, "/out/recup_dir.2/b.tmp", 10)

	s := newSession(t, fs)
	s.SetProgressReporter(internal.ProgressFunc(func(internal.Progress) {
		panic("reporter broke")
	}))

	require.NoError(t, s.StartMonitoring(context.Background(), "/out", rules.New([]string{"jpg"}, nil), time.Hour))

	_, err := s.Wait()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reporter broke")
	assert.Equal(t, StateDone, s.State())
	assert.ErrorIs(t, s.Finalize(), internal.ErrNotRunning)
}

func TestProcessNow_RecordsHistory(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.jpg", 10)
	writeFile(t, fs, "/out/recup_dir.1/b.tmp", 5)

	rec := &memRecorder{}
	s := newSession(t, fs, WithHistory(rec))

	report, err := s.ProcessNow(context.Background(), "/out", rules.New([]string{"jpg"}, []string{"tmp"}))
	require.NoError(t, err)

	require.Len(t, rec.runs, 1)
	run := rec.runs[0]
	assert.Equal(t, report.RunID, run.RunID)
	assert.Equal(t, ModeProcess, run.Mode)
	assert.Equal(t, "jpg", run.KeepRules)
	assert.Equal(t, "tmp", run.ExcludeRules)
	assert.Equal(t, 1, run.FilesDeleted)
	assert.Equal(t, int64(5), run.BytesDeleted)
}

func TestProcessNow_ReportsProgress(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.jpg", 10)
	writeFile(t, fs, "/out/recup_dir.1/b.tmp", 5)

	var updates []internal.Progress
	s := newSession(t, fs)
	s.SetProgressReporter(internal.ProgressFunc(func(p internal.Progress) {
		updates = append(updates, p)
	}))

	_, err := s.ProcessNow(context.Background(), "/out", rules.New([]string{"jpg"}, nil))
	require.NoError(t, err)

	require.Len(t, updates, 2)
	last := updates[len(updates)-1]
	assert.Equal(t, 2, last.FilesProcessed)
	assert.Equal(t, int64(10), last.BytesKept)
	assert.Equal(t, int64(5), last.BytesDeleted)
}

func TestWatch_NewestStaysOpenUntilFinalize(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.jpg", 10)
	writeFile(t, fs, "/out/recup_dir.1/b.tmp", 5)
	writeFile(t, fs, "/out/recup_dir.2/c.tmp", 7)

	s := newSession(t, fs)
	require.NoError(t, s.StartMonitoring(context.Background(), "/out", rules.New([]string{"jpg"}, nil), tick))

	assert.Eventually(t, func() bool {
		return !exists(fs, "/out/recup_dir.1/b.tmp")
	}, time.Second, tick)
	assert.Equal(t, StateWatching, s.State())

	// 多轮轮询后最新目录仍未处理
	time.Sleep(5 * tick)
	assert.True(t, exists(fs, "/out/recup_dir.2/c.tmp"))

	require.NoError(t, s.Finalize())
	report, err := s.Wait()
	require.NoError(t, err)

	assert.False(t, exists(fs, "/out/recup_dir.2/c.tmp"))
	assert.Equal(t, ModeWatch, report.Mode)
	assert.Equal(t, 2, report.Summary.FoldersProcessed)
	assert.Equal(t, 2, report.Summary.FilesDeleted)
	assert.Equal(t, int64(12), report.Summary.BytesDeleted)
	assert.Equal(t, []int{1, 2}, report.Processed)
	assert.Equal(t, StateDone, s.State())
}

func TestWatch_IdleUntilFirstFolder(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))

	s := newSession(t, fs)
	require.NoError(t, s.StartMonitoring(context.Background(), "/out", rules.New(nil, nil), tick))

	time.Sleep(3 * tick)
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, fs.MkdirAll("/out/recup_dir.1", 0755))
	assert.Eventually(t, func() bool {
		return s.State() == StateWatching
	}, time.Second, tick)

	require.NoError(t, s.Finalize())
	_, err := s.Wait()
	require.NoError(t, err)
}

func TestWatch_MissingRootIsRetried(t *testing.T) {
	fs := afero.NewMemMapFs()

	s := newSession(t, fs)
	require.NoError(t, s.StartMonitoring(context.Background(), "/out", rules.New([]string{"jpg"}, nil), tick))

	time.Sleep(2 * tick)
	writeFile(t, fs, "/out/recup_dir.1/x.tmp", 3)
	writeFile(t, fs, "/out/recup_dir.2/y.tmp", 3)

	assert.Eventually(t, func() bool {
		return !exists(fs, "/out/recup_dir.1/x.tmp")
	}, time.Second, tick)

	require.NoError(t, s.Finalize())
	report, err := s.Wait()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Summary.FilesDeleted)
}

func TestWatch_Busy(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/out", 0755))

	s := newSession(t, fs)
	r := rules.New(nil, nil)
	require.NoError(t, s.StartMonitoring(context.Background(), "/out", r, tick))

	assert.ErrorIs(t, s.StartMonitoring(context.Background(), "/out", r, tick), internal.ErrBusy)
	_, err := s.ProcessNow(context.Background(), "/out", r)
	assert.ErrorIs(t, err, internal.ErrBusy)

	require.NoError(t, s.Finalize())
	require.NoError(t, s.Finalize())
	_, err = s.Wait()
	require.NoError(t, err)
}

func TestWatch_Cancel(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.tmp", 1)
	writeFile(t, fs, "/out/recup_dir.2/b.tmp", 1)

	ctx, cancel := context.WithCancel(context.Background())
	s := newSession(t, fs)
	require.NoError(t, s.StartMonitoring(ctx, "/out", rules.New([]string{"jpg"}, nil), time.Hour))

	assert.Eventually(t, func() bool {
		return !exists(fs, "/out/recup_dir.1/a.tmp")
	}, time.Second, tick)

	cancel()
	report, err := s.Wait()
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, report.Summary.FilesDeleted)
	assert.True(t, exists(fs, "/out/recup_dir.2/b.tmp"))
	assert.Equal(t, StateDone, s.State())
}

func TestWatch_FinalizePreemptsWait(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.tmp", 1)

	s := newSession(t, fs)
	require.NoError(t, s.StartMonitoring(context.Background(), "/out", rules.New([]string{"jpg"}, nil), time.Hour))

	require.NoError(t, s.Finalize())

	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("finalize did not interrupt the poll wait")
	}
	assert.False(t, exists(fs, "/out/recup_dir.1/a.tmp"))
}

func TestNotRunning(t *testing.T) {
	s := newSession(t, afero.NewMemMapFs())

	assert.ErrorIs(t, s.Finalize(), internal.ErrNotRunning)
	_, err := s.Wait()
	assert.ErrorIs(t, err, internal.ErrNotRunning)
}

func TestSessionCanRunAgain(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/out/recup_dir.1/a.tmp", 1)

	s := newSession(t, fs)
	r := rules.New([]string{"jpg"}, nil)

	first, err := s.ProcessNow(context.Background(), "/out", r)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Summary.FilesDeleted)

	writeFile(t, fs, "/out/recup_dir.1/b.tmp", 1)
	second, err := s.ProcessNow(context.Background(), "/out", r)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Summary.FilesDeleted)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "watching", StateWatching.String())
	assert.Equal(t, "finalizing", StateFinalizing.String())
	assert.Equal(t, "done", StateDone.String())
}
