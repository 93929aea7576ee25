package fileprocessor

import (
	"fmt"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// CalculateHash 计算文件的 xxHash 哈希值
func CalculateHash(fs afero.Fs, filePath string) (string, error) {
	file, err := fs.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", fmt.Errorf("计算哈希失败: %w", err)
	}

	// 将哈希值转换为十六进制字符串
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// SameContent 比较两个文件的大小和哈希值
func SameContent(fs afero.Fs, a, b string) (bool, error) {
	ia, err := fs.Stat(a)
	if err != nil {
		return false, err
	}
	ib, err := fs.Stat(b)
	if err != nil {
		return false, err
	}
	if ia.Size() != ib.Size() {
		return false, nil
	}

	ha, err := CalculateHash(fs, a)
	if err != nil {
		return false, err
	}
	hb, err := CalculateHash(fs, b)
	if err != nil {
		return false, err
	}
	return ha == hb, nil
}
