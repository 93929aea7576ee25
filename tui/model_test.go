package tui

import (
	"context"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/monitor"
)

func key(s string) tea.KeyMsg {
	if s == "ctrl+c" {
		return tea.KeyMsg{Type: tea.KeyCtrlC}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestUpdate_FinalizeOnce(t *testing.T) {
	calls := 0
	m := initialModel(monitor.ModeWatch, "/out", actions{
		finalize: func() error { calls++; return nil },
	})

	m, _ = m.Update(key("f"))
	m, _ = m.Update(key("f"))

	assert.True(t, m.finalizing)
	assert.Equal(t, 1, calls)
	assert.Contains(t, m.View(), "正在完成最后处理")
}

func TestUpdate_FinalizeIgnoredInProcessMode(t *testing.T) {
	calls := 0
	m := initialModel(monitor.ModeProcess, "/out", actions{
		finalize: func() error { calls++; return nil },
	})

	m, _ = m.Update(key("f"))
	assert.False(t, m.finalizing)
	assert.Zero(t, calls)
}

func TestUpdate_CancelThenQuitAfterDone(t *testing.T) {
	cancelled := 0
	m := initialModel(monitor.ModeWatch, "/out", actions{
		cancel: func() { cancelled++ },
	})

	m, cmd := m.Update(key("ctrl+c"))
	assert.Nil(t, cmd)
	assert.True(t, m.cancelling)
	assert.Equal(t, 1, cancelled)

	m, _ = m.Update(doneMsg{err: context.Canceled})
	assert.True(t, m.done)
	assert.Contains(t, m.View(), "运行中断")

	_, cmd = m.Update(key("q"))
	assert.NotNil(t, cmd)
}

func TestUpdate_ProgressKeepsRecentRecords(t *testing.T) {
	m := initialModel(monitor.ModeWatch, "/out", actions{})

	for i := 0; i < recentLimit+3; i++ {
		rec := internal.DispositionRecord{Path: fmt.Sprintf("/out/recup_dir.1/f%d.jpg", i), Outcome: internal.OutcomeKept, Size: 10}
		m, _ = m.Update(progressMsg(internal.Progress{FilesProcessed: i + 1, BytesKept: int64(10 * (i + 1)), Record: &rec}))
	}

	assert.Len(t, m.recent, recentLimit)
	assert.Equal(t, "/out/recup_dir.1/f3.jpg", m.recent[0].Path)
	assert.Equal(t, recentLimit+3, m.progress.FilesProcessed)
	assert.Contains(t, m.View(), "f10.jpg")
}

func TestView_CompleteShowsSummary(t *testing.T) {
	m := initialModel(monitor.ModeProcess, "/out", actions{})
	m, _ = m.Update(doneMsg{report: monitor.Report{
		Summary:    internal.RunSummary{FoldersProcessed: 2, FilesKept: 3, FilesDeleted: 4, Failures: []string{"/x"}},
		SummaryCSV: "/out/carve_refinery_summary_20240501_120000.csv",
	}})

	view := m.View()
	assert.Contains(t, view, "处理完成")
	assert.Contains(t, view, "删除失败")
	assert.Contains(t, view, "carve_refinery_summary_20240501_120000.csv")
}
