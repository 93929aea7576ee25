package organizer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/afero"

	"github.com/moyu-x/carve-refinery/internal/logger"
)

// batch 记录某个扩展名当前使用的子目录编号和其中的文件数
type batch struct {
	dir   int
	count int
}

// next 返回下一个文件应放入的子目录编号，从 1 开始，满了就换下一个
func (b *batch) next(size int) int {
	if b.dir == 0 || b.count >= size {
		b.dir++
		b.count = 0
	}
	return b.dir
}

// batchFor 第一次遇到某个扩展名时，从已有的编号目录继续
func (o *Organizer) batchFor(root, token string) (*batch, error) {
	if b, ok := o.batches[token]; ok {
		return b, nil
	}

	b, err := existingBatch(o.Fs, filepath.Join(root, token))
	if err != nil {
		return nil, err
	}
	o.batches[token] = b
	return b, nil
}

// existingBatch 找出类型目录下最大的编号目录及其文件数
func existingBatch(fs afero.Fs, typeDir string) (*batch, error) {
	exists, err := afero.DirExists(fs, typeDir)
	if err != nil {
		return nil, fmt.Errorf("检查类型目录失败: %w", err)
	}
	if !exists {
		return &batch{}, nil
	}

	entries, err := afero.ReadDir(fs, typeDir)
	if err != nil {
		return nil, fmt.Errorf("读取类型目录失败: %w", err)
	}

	maxNum := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		// 忽略非数字目录名
		num, err := strconv.Atoi(entry.Name())
		if err != nil || num < 1 {
			continue
		}
		if num > maxNum {
			maxNum = num
		}
	}

	if maxNum == 0 {
		return &batch{}, nil
	}

	count := 0
	subDir := filepath.Join(typeDir, strconv.Itoa(maxNum))
	err = afero.Walk(fs, subDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("统计子目录文件数量失败: %w", err)
	}

	logger.Get().Debug().
		Str("type_dir", typeDir).
		Int("dir_number", maxNum).
		Int("file_count", count).
		Msg("继续使用已有子目录")

	return &batch{dir: maxNum, count: count}, nil
}
