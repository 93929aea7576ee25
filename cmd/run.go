package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/moyu-x/carve-refinery/config"
	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/logger"
	"github.com/moyu-x/carve-refinery/internal/monitor"
	"github.com/moyu-x/carve-refinery/internal/rootlock"
	"github.com/moyu-x/carve-refinery/pkg/history"
	"github.com/moyu-x/carve-refinery/pkg/scanner"
	"github.com/moyu-x/carve-refinery/tui"
)

// addRunFlags watch 和 process 共用的参数
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("keep", "", "保留的扩展名，逗号分隔，例如 jpg,png,tar.gz")
	cmd.Flags().String("exclude", "", "删除的扩展名，优先于保留列表，例如 xml.gz")
	cmd.Flags().Bool("no-delete", false, "不删除任何文件，只统计和整理")
	cmd.Flags().Bool("reorganize", false, "结束后按扩展名整理保留的文件")
	cmd.Flags().Int("batch-size", internal.DefaultBatchSize, "整理时每个子目录的文件数")
	cmd.Flags().Bool("dedupe", false, "整理时删除与已有文件内容相同的文件")
	cmd.Flags().Bool("sniff", false, "整理时根据文件头识别无扩展名文件")
	cmd.Flags().Bool("audit-log", false, "写入逐文件 CSV 日志")
	cmd.Flags().String("log-dir", "", "CSV 日志目录 (默认输出根目录)")
	cmd.Flags().String("history-db", internal.DefaultHistoryPath, "运行历史数据库路径")
	cmd.Flags().Bool("no-history", false, "不记录运行历史")
	cmd.Flags().Bool("tui", true, "在终端中显示交互界面")
}

// runSession 按配置创建会话并以 TUI 或普通输出方式运行
func runSession(cmd *cobra.Command, mode string) error {
	cfg := config.Get()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if mode == monitor.ModeProcess {
		if _, err := os.Stat(cfg.Root); err != nil {
			return &internal.FolderAccessError{Folder: cfg.Root, Err: err}
		}
	}

	lock, err := rootlock.Acquire(cfg.Root)
	if err != nil {
		return err
	}
	logger.Get().Debug().Str("lock", lock.Path()).Msg("已锁定输出目录")
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Get().Warn().Err(err).Msg("释放目录锁失败")
		}
	}()

	opts := []monitor.Option{
		monitor.WithDedupe(cfg.Reorganize.Dedupe),
		monitor.WithSniff(cfg.Reorganize.Sniff),
	}
	if cfg.Monitor.LockMarker != "" {
		opts = append(opts, monitor.WithPolicy(scanner.LockFilePolicy{Name: cfg.Monitor.LockMarker}))
	}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logger.Get().Warn().Err(err).Msg("无法打开历史数据库，本次运行不记录历史")
		} else {
			defer store.Close()
			opts = append(opts, monitor.WithHistory(store))
		}
	}

	session, err := monitor.New(afero.NewOsFs(), opts...)
	if err != nil {
		return err
	}
	defer session.Close()

	session.SetReorganizeOptions(cfg.Reorganize.Enabled, cfg.Reorganize.BatchSize)
	session.SetLogging(cfg.Logging.Audit, cfg.Logging.Dir)

	r := cfg.Rules()
	logger.Get().Info().
		Str("root", cfg.Root).
		Strs("keep", r.KeepList()).
		Strs("exclude", r.ExcludeList()).
		Bool("delete", r.Active()).
		Msg("规则已加载")

	out := cmd.OutOrStdout()

	var report monitor.Report
	if useTUI(cmd) {
		report, err = tui.Run(cmd.Context(), tui.Options{
			Session:  session,
			Mode:     mode,
			Root:     cfg.Root,
			Rules:    r,
			Interval: cfg.Monitor.Interval,
		})
	} else {
		report, err = runPlain(cmd.Context(), out, session, mode, cfg)
	}

	if errors.Is(err, context.Canceled) {
		color.New(color.FgYellow).Fprintln(out, "已取消，已处理的文件保持当前状态")
		printReport(out, report)
		return nil
	}
	if err != nil {
		return err
	}

	printReport(out, report)
	return nil
}

// runPlain 无界面运行。watch 模式下第一次 Ctrl+C 结束监控，第二次取消
func runPlain(ctx context.Context, out io.Writer, session *monitor.Session, mode string, cfg *config.Config) (monitor.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session.SetProgressReporter(progressPrinter(out))

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	go func() {
		count := 0
		for {
			select {
			case <-sigs:
				count++
				if count == 1 && mode == monitor.ModeWatch {
					if err := session.Finalize(); err == nil {
						fmt.Fprintln(out, "正在完成最后处理，再按一次 Ctrl+C 取消")
						continue
					}
				}
				cancel()
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	if mode == monitor.ModeProcess {
		return session.ProcessNow(ctx, cfg.Root, cfg.Rules())
	}

	if err := session.StartMonitoring(ctx, cfg.Root, cfg.Rules(), cfg.Monitor.Interval); err != nil {
		return monitor.Report{}, err
	}
	fmt.Fprintf(out, "正在监控 %s，carve 结束后按 Ctrl+C 完成处理\n", cfg.Root)
	return session.Wait()
}

// progressPrinter 每秒最多输出一行进度
func progressPrinter(out io.Writer) internal.ProgressReporter {
	limiter := rate.NewLimiter(rate.Every(time.Second), 1)
	return internal.ProgressFunc(func(p internal.Progress) {
		if !limiter.Allow() {
			return
		}
		fmt.Fprintf(out, "%s | 文件 %d | 保留 %s | 删除 %s\n",
			p.Activity,
			p.FilesProcessed,
			humanize.IBytes(uint64(p.BytesKept)),
			humanize.IBytes(uint64(p.BytesDeleted)))
	})
}

func printReport(out io.Writer, r monitor.Report) {
	s := r.Summary
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	bold.Fprintln(out, "========== 运行汇总 ==========")
	fmt.Fprintf(out, "处理目录:  %d\n", s.FoldersProcessed)
	fmt.Fprintf(out, "保留文件:  %d (%s)\n", s.FilesKept, humanize.IBytes(uint64(s.BytesKept)))
	green.Fprintf(out, "删除文件:  %d (释放 %s)\n", s.FilesDeleted, humanize.IBytes(uint64(s.BytesDeleted)))
	fmt.Fprintf(out, "处置总量:  %s\n", humanize.IBytes(uint64(s.TotalBytes())))
	if len(s.Failures) > 0 {
		yellow.Fprintf(out, "删除失败:  %d 个文件留在原处\n", len(s.Failures))
		for _, path := range s.Failures {
			yellow.Fprintf(out, "  - %s\n", path)
		}
	}
	if rr := r.Reorganize; rr != nil {
		fmt.Fprintf(out, "整理文件:  %d (重复 %d, 失败 %d)\n", rr.Moved, rr.Duplicates, len(rr.Failed))
		if rr.Report != "" {
			fmt.Fprintf(out, "carve 报告: %s\n", rr.Report)
		}
		for _, dir := range rr.Remaining {
			yellow.Fprintf(out, "保留的 carve 目录: %s\n", dir)
		}
	}
	if r.AuditLog != "" {
		fmt.Fprintf(out, "逐文件日志: %s\n", r.AuditLog)
	}
	if r.SummaryCSV != "" {
		fmt.Fprintf(out, "汇总文件:  %s\n", r.SummaryCSV)
	}
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(out, "耗时:      %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
}
