package cmd

import (
	"github.com/spf13/cobra"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/monitor"
)

var watchCmd = &cobra.Command{
	Use:   "watch <root>",
	Short: "carve 进行中持续处理输出目录",
	Long: `按轮询间隔扫描 <root> 下的 recup_dir.N 目录，处置编号最大目录之外的所有目录。
carve 结束后按 f（界面模式）或 Ctrl+C（普通模式）完成最后处理：
处理最新目录，并在启用 --reorganize 时整理保留的文件。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, monitor.ModeWatch)
	},
}

func init() {
	addRunFlags(watchCmd)
	watchCmd.Flags().Duration("interval", internal.DefaultPollInterval, "轮询间隔")
	watchCmd.Flags().String("lock-marker", "", "目录中存在该文件时视为仍在写入")

	rootCmd.AddCommand(watchCmd)
}
