package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/moyu-x/carve-refinery/config"
	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/pkg/history"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "显示最近的运行记录",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	root, _ := cmd.Flags().GetString("root")
	limit, _ := cmd.Flags().GetInt("limit")

	store, err := history.Open(config.Get().History.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Recent(root, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(out, "没有运行记录")
		return nil
	}

	bold := color.New(color.Bold)
	bold.Fprintf(out, "%-19s  %-7s  %6s  %6s  %10s  %10s  %s\n", "结束时间", "模式", "保留", "删除", "释放", "总量", "目录")
	for _, r := range runs {
		s := r.Summary()
		line := fmt.Sprintf("%-19s  %-7s  %6d  %6d  %10s  %10s  %s",
			r.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			r.Mode,
			s.FilesKept,
			s.FilesDeleted,
			humanize.IBytes(uint64(s.BytesDeleted)),
			humanize.IBytes(uint64(s.TotalBytes())),
			r.Root)
		if r.DeleteFailures > 0 {
			color.New(color.FgYellow).Fprintf(out, "%s  (%d 个删除失败)\n", line, r.DeleteFailures)
			continue
		}
		fmt.Fprintln(out, line)
	}

	total, err := store.Totals()
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(out, "累计删除 %d 个文件，释放 %s\n",
		total.FilesDeleted, humanize.IBytes(uint64(total.BytesDeleted)))
	return nil
}

func init() {
	historyCmd.Flags().String("history-db", internal.DefaultHistoryPath, "运行历史数据库路径")
	historyCmd.Flags().String("root", "", "只显示该输出目录的运行")
	historyCmd.Flags().Int("limit", 10, "显示的记录数")

	rootCmd.AddCommand(historyCmd)
}
