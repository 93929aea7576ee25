package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// Logger 全局日志实例，Init 之前丢弃所有输出
	Logger = discard()

	logFile *os.File
)

// Options 日志初始化参数
type Options struct {
	// Level 日志级别 ("trace", "debug", "info", "warn", "error")
	Level string
	// File 日志文件路径，为空时仅输出到控制台
	File string
	// Quiet 不输出到控制台（TUI 模式下使用）
	Quiet bool
	// Console 控制台输出，默认 os.Stderr
	Console io.Writer
}

// Init 初始化 zerolog 日志
func Init(opts Options) error {
	zerolog.TimeFieldFormat = time.RFC3339

	level := ParseLevel(opts.Level)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var writers []io.Writer
	if !opts.Quiet {
		writers = append(writers, zerolog.ConsoleWriter{Out: console, TimeFormat: "15:04:05"})
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		Close()
		logFile = f
		writers = append(writers, f)
	}

	var output io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		output = writers[0]
	default:
		output = zerolog.MultiLevelWriter(writers...)
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	Logger = &logger
	log.Logger = logger
	return nil
}

// ParseLevel 解析日志级别，未知级别按 info 处理
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func discard() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// Get 返回全局 logger 实例
func Get() *zerolog.Logger {
	return Logger
}

// Set 替换全局 logger，测试中用来捕获输出
func Set(l zerolog.Logger) {
	Logger = &l
}

// Close 关闭日志文件
func Close() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
