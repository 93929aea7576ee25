package fileprocessor

import (
	"fmt"
	"io"

	"github.com/h2non/filetype"
	"github.com/spf13/afero"
)

// FileHeaderSize 文件类型检测所需的文件头部大小（字节）
const FileHeaderSize = 261

// DetectExtension 根据文件头识别扩展名，无法识别时返回空字符串
func DetectExtension(fs afero.Fs, filePath string) (string, error) {
	head, err := readFileHeader(fs, filePath, FileHeaderSize)
	if err != nil {
		return "", fmt.Errorf("读取文件头部失败: %w", err)
	}

	kind, err := filetype.Match(head)
	if err != nil {
		return "", fmt.Errorf("检测文件类型失败: %w", err)
	}

	if kind == filetype.Unknown {
		return "", nil
	}

	return kind.Extension, nil
}

// readFileHeader 读取文件的前 size 个字节
func readFileHeader(fs afero.Fs, filePath string, size int) ([]byte, error) {
	file, err := fs.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	head := make([]byte, size)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, fmt.Errorf("读取文件头部失败: %w", err)
	}

	return head[:n], nil
}
