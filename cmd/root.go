package cmd

import (
	"context"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/moyu-x/carve-refinery/config"
	"github.com/moyu-x/carve-refinery/internal/logger"
)

var (
	cfgFile  string // 配置文件路径
	logLevel string // 日志级别
	logFile  string // 日志文件
	verbose  bool   // 调试日志
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "carve-refinery",
	Short: "在 PhotoRec 等 carve 工具运行时清理和整理恢复出的文件",
	Long: `Carve Refinery 监控 carve 工具的输出目录（recup_dir.1, recup_dir.2 ...），
按扩展名保留或删除恢复出的文件，释放磁盘空间。

主要功能:
- 按保留/排除扩展名列表处置文件，支持 tar.gz 这类复合扩展名
- carve 进行中持续处理已写完的目录，最新目录保持不动
- 结束后按扩展名整理保留的文件，每个子目录最多 500 个文件
- 逐文件 CSV 日志、汇总 CSV 和运行历史`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := executeAndClose(context.Background()); err != nil {
		os.Exit(1)
	}
}

// executeAndClose 执行命令并关闭日志文件，os.Exit 不会执行 defer
func executeAndClose(ctx context.Context) error {
	defer logger.Close()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件 (默认在 $HOME/.carve-refinery/config.yaml 查找)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "同时写入的日志文件")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "显示调试日志")
}

// initConfig 绑定命令行参数、加载配置并初始化日志
func initConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, args); err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if verbose {
		level = "debug"
	}

	return logger.Init(logger.Options{
		Level: level,
		File:  cfg.Logging.File,
		Quiet: useTUI(cmd),
	})
}

// flagKeys 命令行参数与配置键的对应关系
var flagKeys = map[string]string{
	"log-level":   "logging.level",
	"log-file":    "logging.file",
	"keep":        "keep",
	"exclude":     "exclude",
	"interval":    "monitor.interval",
	"lock-marker": "monitor.lock_marker",
	"reorganize":  "reorganize.enabled",
	"batch-size":  "reorganize.batch_size",
	"dedupe":      "reorganize.dedupe",
	"sniff":       "reorganize.sniff",
	"audit-log":   "logging.audit",
	"log-dir":     "logging.dir",
	"history-db":  "history.path",
}

func bindFlags(cmd *cobra.Command, args []string) error {
	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := viper.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	if cmd.Flags().Changed("no-delete") {
		viper.Set("delete", false)
	}
	if cmd.Flags().Changed("no-history") {
		viper.Set("history.enabled", false)
	}
	// 指定日志目录即开启逐文件日志
	if cmd.Flags().Changed("log-dir") && !cmd.Flags().Changed("audit-log") {
		viper.Set("logging.audit", true)
	}
	if len(args) > 0 {
		viper.Set("root", args[0])
	}
	return nil
}

// useTUI 只有在要求使用界面且标准输出是终端时才启动 TUI
func useTUI(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("tui")
	if f == nil || f.Value.String() != "true" {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
