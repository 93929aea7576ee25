package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/logger"
	"github.com/moyu-x/carve-refinery/internal/monitor"
)

func (m *model) Update(msg tea.Msg) (*model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = msg.Width - 10

	case progressMsg:
		m.progress = internal.Progress(msg)
		if msg.Record != nil {
			m.recent = append(m.recent, *msg.Record)
			if len(m.recent) > recentLimit {
				m.recent = m.recent[len(m.recent)-recentLimit:]
			}
		}
		if msg.ToMove > 0 {
			cmds = append(cmds, m.progressBar.SetPercent(float64(msg.Moved)/float64(msg.ToMove)))
		}

	case doneMsg:
		m.done = true
		m.state = monitor.StateDone
		m.report = msg.report
		m.err = msg.err
		return m, nil

	case stateTickMsg:
		if m.done {
			return m, nil
		}
		if m.actions.state != nil {
			m.state = m.actions.state()
		}
		return m, stateTick()

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		model, cmd := m.progressBar.Update(msg)
		m.progressBar = model.(progress.Model)
		return m, cmd
	}

	return m, tea.Batch(cmds...)
}

func (m *model) handleKey(msg tea.KeyMsg) (*model, tea.Cmd) {
	if m.done {
		switch msg.String() {
		case "q", "ctrl+c", "enter", "esc":
			return m, tea.Quit
		}
		return m, nil
	}

	switch msg.String() {
	case "f":
		if m.mode != monitor.ModeWatch || m.finalizing || m.cancelling {
			return m, nil
		}
		if m.actions.finalize != nil {
			if err := m.actions.finalize(); err != nil {
				logger.Get().Warn().Err(err).Msg("结束监控失败")
				return m, nil
			}
		}
		m.finalizing = true

	case "q", "ctrl+c":
		if m.cancelling {
			return m, nil
		}
		m.cancelling = true
		if m.actions.cancel != nil {
			m.actions.cancel()
		}
	}

	return m, nil
}

func stateTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(t time.Time) tea.Msg {
		return stateTickMsg(t)
	})
}
