// Package rootlock keeps two refinery processes from working on the same
// output root at once.
package rootlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileName 锁文件名，位于输出根目录下
const FileName = ".carve-refinery.lock"

var ErrLocked = errors.New("输出目录正被另一个进程处理")

type Lock struct {
	flock *flock.Flock
	path  string
}

// Acquire 非阻塞地获取 root 的独占锁
func Acquire(root string) (*Lock, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败 %s: %w", root, err)
	}

	path := filepath.Join(root, FileName)
	l := &Lock{flock: flock.New(path), path: path}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("获取锁失败 %s: %w", path, err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrLocked, root)
	}
	return l, nil
}

func (l *Lock) Path() string {
	return l.path
}

// Release 释放锁并删除锁文件
func (l *Lock) Release() error {
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("释放锁失败 %s: %w", l.path, err)
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除锁文件失败 %s: %w", l.path, err)
	}
	return nil
}
