package cmd

import (
	"github.com/spf13/cobra"

	"github.com/moyu-x/carve-refinery/internal/monitor"
)

var processCmd = &cobra.Command{
	Use:   "process <root>",
	Short: "一次性处理已完成的 carve 输出",
	Long: `处理 <root> 下所有 recup_dir.N 目录（包括编号最大的目录），
启用 --reorganize 时随后整理保留的文件。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd, monitor.ModeProcess)
	},
}

func init() {
	addRunFlags(processCmd)

	rootCmd.AddCommand(processCmd)
}
