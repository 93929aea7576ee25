package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/monitor"
)

// 最近处置记录的显示条数
const recentLimit = 8

// actions 界面对会话的操作
type actions struct {
	finalize func() error
	cancel   func()
	state    func() monitor.State
}

type model struct {
	mode        string
	root        string
	actions     actions
	state       monitor.State
	progress    internal.Progress
	recent      []internal.DispositionRecord
	finalizing  bool
	cancelling  bool
	done        bool
	report      monitor.Report
	err         error
	startTime   time.Time
	width       int
	progressBar progress.Model
	spinner     spinner.Model
}

func initialModel(mode, root string, a actions) *model {
	progressBar := progress.New(progress.WithDefaultGradient())
	progressBar.PercentageStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("205")).
		Width(4)

	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		FPS:    time.Second / 10,
	}
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &model{
		mode:        mode,
		root:        root,
		actions:     a,
		startTime:   time.Now(),
		progressBar: progressBar,
		spinner:     s,
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, stateTick())
}
