package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/logger"
	"github.com/moyu-x/carve-refinery/internal/monitor"
	"github.com/moyu-x/carve-refinery/pkg/rules"
)

type Options struct {
	Session  *monitor.Session
	Mode     string
	Root     string
	Rules    rules.Rules
	Interval time.Duration
}

type teaModel struct {
	m *model
}

func (tm teaModel) Init() tea.Cmd {
	return tm.m.Init()
}

func (tm teaModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m, cmd := tm.m.Update(msg)
	return teaModel{m: m}, cmd
}

func (tm teaModel) View() string {
	return tm.m.View()
}

// Run 在终端界面中运行监控或一次性处理，返回运行结果
func Run(ctx context.Context, opts Options) (monitor.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Get().Info().Str("mode", opts.Mode).Msg("启动 TUI 界面")

	s := opts.Session
	m := initialModel(opts.Mode, opts.Root, actions{
		finalize: s.Finalize,
		cancel:   cancel,
		state:    s.State,
	})
	p := tea.NewProgram(teaModel{m: m}, tea.WithAltScreen())

	s.SetProgressReporter(internal.ProgressFunc(func(pr internal.Progress) {
		p.Send(progressMsg(pr))
	}))

	switch opts.Mode {
	case monitor.ModeProcess:
		go func() {
			report, err := s.ProcessNow(ctx, opts.Root, opts.Rules)
			p.Send(doneMsg{report: report, err: err})
		}()
	default:
		if err := s.StartMonitoring(ctx, opts.Root, opts.Rules, opts.Interval); err != nil {
			return monitor.Report{}, err
		}
		go func() {
			report, err := s.Wait()
			p.Send(doneMsg{report: report, err: err})
		}()
	}

	if _, err := p.Run(); err != nil {
		logger.Get().Error().Err(err).Msg("TUI 运行错误")
		return monitor.Report{}, err
	}

	logger.Get().Info().Msg("TUI 正常退出")

	if !m.done {
		// 界面提前退出时等待会话结束
		cancel()
		if opts.Mode == monitor.ModeWatch {
			return s.Wait()
		}
		return m.report, context.Canceled
	}
	return m.report, m.err
}
