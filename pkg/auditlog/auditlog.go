// Package auditlog writes the per-file disposition CSV and the run summary CSV.
package auditlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/logger"
)

const (
	LogFilePrefix     = "carve_refinery_log_"
	SummaryFilePrefix = "carve_refinery_summary_"
	TimestampLayout   = "20060102_150405"
)

var (
	LogHeader     = []string{"path", "extension", "decision", "size_bytes", "timestamp"}
	SummaryHeader = []string{
		"timestamp",
		"run_id",
		"base_dir",
		"folders_processed",
		"files_kept",
		"files_deleted",
		"delete_failures",
		"bytes_kept",
		"bytes_deleted",
		"total_space_saved_gb",
	}
)

// Writer 逐行追加的处置日志
type Writer struct {
	path string
	file afero.File
	csv  *csv.Writer
	rows int
	mu   sync.Mutex
}

// createNew 在 dir 中创建 prefix+时间戳.csv，同一秒内已存在时依次尝试 _1、_2 ...
// 已有的文件不会被截断或追加
func createNew(fs afero.Fs, dir, prefix string, now time.Time) (afero.File, string, error) {
	base := filepath.Join(dir, prefix+now.Format(TimestampLayout))
	for i := 0; ; i++ {
		path := base + ".csv"
		if i > 0 {
			path = fmt.Sprintf("%s_%d.csv", base, i)
		}

		file, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", err
		}
		return file, path, nil
	}
}

// Open 在 dir 中创建新的处置日志并写入表头
func Open(fs afero.Fs, dir string, now time.Time) (*Writer, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("创建日志目录: %w", err)
	}

	file, path, err := createNew(fs, dir, LogFilePrefix, now)
	if err != nil {
		return nil, fmt.Errorf("创建日志文件: %w", err)
	}

	w := &Writer{
		path: path,
		file: file,
		csv:  csv.NewWriter(file),
	}

	if err := w.writeRow(LogHeader); err != nil {
		file.Close()
		return nil, err
	}

	logger.Get().Info().Str("path", path).Msg("处置日志已创建")
	return w, nil
}

// Path 日志文件路径
func (w *Writer) Path() string {
	return w.path
}

// Write 追加一条处置记录，每行立即刷新，崩溃时保留已写入的行
func (w *Writer) Write(rec internal.DispositionRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	w.rows++
	return w.writeRow([]string{
		rec.Path,
		rec.Extension,
		string(rec.Outcome),
		strconv.FormatInt(rec.Size, 10),
		rec.Timestamp.Format(time.RFC3339),
	})
}

func (w *Writer) writeRow(row []string) error {
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("写入日志: %w", err)
	}
	w.csv.Flush()
	return w.csv.Error()
}

// Rows 已写入的记录数（不含表头）
func (w *Writer) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

// Close 刷新并关闭日志文件
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}

	w.csv.Flush()
	err := w.file.Close()
	w.file = nil
	return err
}

// Summary 汇总 CSV 的内容
type Summary struct {
	RunID   string
	BaseDir string
	Time    time.Time
	Result  internal.RunSummary
}

// WriteSummary 在 dir 中写入单行汇总 CSV，返回文件路径
func WriteSummary(fs afero.Fs, dir string, s Summary) (string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("创建汇总目录: %w", err)
	}

	ts := s.Time.Format(TimestampLayout)
	file, path, err := createNew(fs, dir, SummaryFilePrefix, s.Time)
	if err != nil {
		return "", fmt.Errorf("创建汇总文件: %w", err)
	}
	defer file.Close()

	r := s.Result
	w := csv.NewWriter(file)
	rows := [][]string{
		SummaryHeader,
		{
			ts,
			s.RunID,
			s.BaseDir,
			strconv.Itoa(r.FoldersProcessed),
			strconv.Itoa(r.FilesKept),
			strconv.Itoa(r.FilesDeleted),
			strconv.Itoa(len(r.Failures)),
			strconv.FormatInt(r.BytesKept, 10),
			strconv.FormatInt(r.BytesDeleted, 10),
			fmt.Sprintf("%.3f", r.SpaceSavedGB()),
		},
	}
	if err := w.WriteAll(rows); err != nil {
		return "", fmt.Errorf("写入汇总: %w", err)
	}

	return path, nil
}
