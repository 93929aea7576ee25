package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/monitor"
)

func (m *model) View() string {
	if m.done {
		return m.completeView()
	}
	return m.runningView()
}

func (m *model) runningView() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.spinner.View()+" "+m.title()) + "\n")
	b.WriteString(filePathStyle.Render(m.root) + "\n\n")

	b.WriteString(statsBoxStyle.Render(m.renderStats()) + "\n\n")

	if m.progress.ToMove > 0 {
		b.WriteString(labelStyle.Render("整理进度：") + "\n")
		b.WriteString(m.progressBar.View() + "\n\n")
	}

	if m.progress.Activity != "" {
		b.WriteString(labelStyle.Render("当前：") + "\n")
		b.WriteString(filePathStyle.Render(m.progress.Activity) + "\n\n")
	}

	if len(m.recent) > 0 {
		b.WriteString(labelStyle.Render("最近处置：") + "\n")
		for _, rec := range m.recent {
			b.WriteString("  " + renderRecord(rec) + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(separatorStyle.Render(strings.Repeat("─", 60)) + "\n")
	b.WriteString(hintStyle.Render(m.hint()) + "\n")

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(b.String())
}

func (m *model) title() string {
	switch {
	case m.cancelling:
		return "正在取消..."
	case m.finalizing || m.state == monitor.StateFinalizing:
		return "正在完成最后处理..."
	case m.state == monitor.StateWatching:
		return "正在监控 carve 输出"
	case m.mode == monitor.ModeProcess:
		return "正在处理"
	default:
		return "等待第一个 carve 目录"
	}
}

func (m *model) hint() string {
	if m.mode == monitor.ModeWatch && !m.finalizing {
		return "f 结束 carve 并完成处理 • q 取消"
	}
	return "q 取消"
}

func (m *model) renderStats() string {
	var b strings.Builder
	p := m.progress
	b.WriteString(fmt.Sprintf("  目录数：      %d\n", p.FoldersSeen))
	b.WriteString(fmt.Sprintf("  已处理文件：  %d\n", p.FilesProcessed))
	b.WriteString(fmt.Sprintf("  保留：        %s\n", humanize.IBytes(uint64(p.BytesKept))))
	b.WriteString(fmt.Sprintf("  已删除：      %s\n", humanize.IBytes(uint64(p.BytesDeleted))))
	b.WriteString(fmt.Sprintf("  运行时间：    %s", time.Since(m.startTime).Round(time.Second)))
	return b.String()
}

func renderRecord(rec internal.DispositionRecord) string {
	line := fmt.Sprintf("%-13s %s (%s)", rec.Outcome, rec.Path, humanize.IBytes(uint64(rec.Size)))
	switch rec.Outcome {
	case internal.OutcomeDeleted:
		return deletedStyle.Render(line)
	case internal.OutcomeDeleteFailed:
		return failedStyle.Render(line)
	default:
		return keptStyle.Render(line)
	}
}

func (m *model) completeView() string {
	var b strings.Builder

	if m.err != nil {
		b.WriteString(errorTitleStyle.Render("运行中断："+m.err.Error()) + "\n\n")
	} else {
		b.WriteString(successTitleStyle.Render("处理完成！") + "\n\n")
	}

	b.WriteString(statsBoxStyle.Render(m.renderFinalStats()) + "\n\n")

	b.WriteString(separatorStyle.Render(strings.Repeat("─", 60)) + "\n")
	b.WriteString(hintStyle.Render("按 Enter 或 q 退出") + "\n")

	return lipgloss.NewStyle().
		Padding(2).
		Render(b.String())
}

func (m *model) renderFinalStats() string {
	var b strings.Builder
	r := m.report
	s := r.Summary

	b.WriteString("最终统计：\n\n")
	b.WriteString(fmt.Sprintf("  • 处理目录：     %d 个\n", s.FoldersProcessed))
	b.WriteString(fmt.Sprintf("  • 保留文件：     %d 个 (%s)\n", s.FilesKept, humanize.IBytes(uint64(s.BytesKept))))
	b.WriteString(fmt.Sprintf("  • 删除文件：     %d 个 (%s)\n", s.FilesDeleted, humanize.IBytes(uint64(s.BytesDeleted))))
	if len(s.Failures) > 0 {
		b.WriteString(fmt.Sprintf("  • 删除失败：     %d 个\n", len(s.Failures)))
	}
	if r.Reorganize != nil {
		b.WriteString(fmt.Sprintf("  • 已整理：       %d 个文件\n", r.Reorganize.Moved))
		if len(r.Reorganize.Remaining) > 0 {
			b.WriteString(fmt.Sprintf("  • 保留的 carve 目录：%s\n", strings.Join(r.Reorganize.Remaining, ", ")))
		}
	}
	if r.SummaryCSV != "" {
		b.WriteString(fmt.Sprintf("  • 汇总文件：     %s\n", r.SummaryCSV))
	}
	if !r.FinishedAt.IsZero() {
		b.WriteString(fmt.Sprintf("  • 总耗时：       %s\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second)))
	}
	return b.String()
}
