package internal

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration 配置错误，在任何处理开始前致命
	ErrConfiguration = errors.New("configuration error")

	// ErrBusy 已有处理任务在运行
	ErrBusy = errors.New("a processing pass is already running")

	// ErrNotRunning 监控未启动
	ErrNotRunning = errors.New("monitoring is not running")
)

// ConfigError 返回包装了 ErrConfiguration 的错误
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// FolderAccessError 输出根目录或 carve 目录不可读
type FolderAccessError struct {
	Folder string
	Err    error
}

func (e *FolderAccessError) Error() string {
	return fmt.Sprintf("folder %s not accessible: %v", e.Folder, e.Err)
}

func (e *FolderAccessError) Unwrap() error { return e.Err }

// FileOperationError 单个文件的删除或移动失败
type FileOperationError struct {
	Op   string
	Path string
	Err  error
}

func (e *FileOperationError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileOperationError) Unwrap() error { return e.Err }
