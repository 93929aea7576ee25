package fileprocessor

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/logger"
	"github.com/moyu-x/carve-refinery/pkg/rules"
)

// Dispose 按决定删除或保留单个文件，并记录处置结果
// 删除失败不会中断处理：文件留在原处，按保留计数
func (p *Processor) Dispose(folder string, entry internal.FileEntry, decision rules.Decision) internal.DispositionRecord {
	rec := internal.DispositionRecord{
		Path:      entry.Path,
		Folder:    folder,
		Extension: rules.PrimaryToken(entry.Name, p.Rules),
		Size:      entry.Size,
		Timestamp: p.Now(),
		Outcome:   internal.OutcomeKept,
	}

	if decision == rules.Delete {
		if err := p.Fs.Remove(entry.Path); err != nil {
			rec.Outcome = internal.OutcomeDeleteFailed
			rec.Err = &internal.FileOperationError{Op: "delete", Path: entry.Path, Err: err}
			p.Registry.MarkFailed(entry.Path)
			logger.Get().Warn().Err(err).Str("path", entry.Path).Msg("删除文件失败，保留在原处")
		} else {
			rec.Outcome = internal.OutcomeDeleted
			logger.Get().Debug().Str("path", entry.Path).Int64("size", entry.Size).Msg("已删除")
		}
	} else {
		logger.Get().Debug().Str("path", entry.Path).Msg("已保留")
	}

	p.record(rec)
	return rec
}

// record 记入统计、保留列表和处置日志
func (p *Processor) record(rec internal.DispositionRecord) {
	if rec.Outcome != internal.OutcomeDeleteFailed {
		p.seen[rec.Path] = struct{}{}
	}
	p.Summary.Add(rec)

	if rec.Outcome == internal.OutcomeKept {
		p.KeptFiles[rec.Extension] = append(p.KeptFiles[rec.Extension], rec.Path)
	}

	if p.Audit != nil {
		if err := p.Audit.Write(rec); err != nil {
			logger.Get().Error().Err(err).Str("path", rec.Path).Msg("写入处置日志失败")
		}
	}
}

// MoveFile 使用 rename 操作将文件从源路径移动到目标路径
func MoveFile(fs afero.Fs, src, dst string) error {
	// afero 的 Rename 方法在底层对应 os.Rename
	if err := fs.Rename(src, dst); err != nil {
		// 如果 Rename 失败（可能是跨卷移动），尝试复制后删除
		logger.Get().Debug().
			Err(err).
			Str("source", src).
			Str("destination", dst).
			Msg("直接重命名失败，尝试复制后删除")

		if err := copyFile(fs, src, dst); err != nil {
			return err
		}

		if err := fs.Remove(src); err != nil {
			// 原文件还在，撤销副本
			if rmErr := fs.Remove(dst); rmErr != nil {
				logger.Get().Warn().Err(rmErr).Str("destination", dst).Msg("删除目标副本失败")
			}
			return fmt.Errorf("删除原文件失败: %w", err)
		}
	}
	return nil
}

func copyFile(fs afero.Fs, src, dst string) error {
	sourceFile, err := fs.Open(src)
	if err != nil {
		return fmt.Errorf("打开源文件失败: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := fs.Create(dst)
	if err != nil {
		return fmt.Errorf("创建目标文件失败: %w", err)
	}

	if _, err = io.Copy(destFile, sourceFile); err != nil {
		destFile.Close()
		fs.Remove(dst)
		return fmt.Errorf("复制文件内容失败: %w", err)
	}

	return destFile.Close()
}

// UniquePath 目标文件已存在时，依次尝试 name_1.ext、name_2.ext ...
func UniquePath(fs afero.Fs, dst string) (string, error) {
	exists, err := afero.Exists(fs, dst)
	if err != nil {
		return "", fmt.Errorf("检查文件是否存在失败: %w", err)
	}
	if !exists {
		return dst, nil
	}

	ext := filepath.Ext(dst)
	baseName := strings.TrimSuffix(dst, ext)

	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", baseName, i, ext)
		exists, err := afero.Exists(fs, candidate)
		if err != nil {
			return "", fmt.Errorf("检查文件是否存在失败: %w", err)
		}
		if !exists {
			logger.Get().Debug().
				Str("original_path", dst).
				Str("new_path", candidate).
				Msg("文件名冲突，自动重命名")
			return candidate, nil
		}
	}
}
