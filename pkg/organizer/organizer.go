// Package organizer moves kept files into <root>/<extension>/<n>/ folders of
// bounded size and removes carve folders left empty.
package organizer

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/fileprocessor"
	"github.com/moyu-x/carve-refinery/internal/logger"
	"github.com/moyu-x/carve-refinery/pkg/scanner"
)

const (
	// PhotoRec 写入 carve 目录的报告文件
	CarveReportName   = "report.xml"
	carveReportMarker = "<dc:type>Carve Report</dc:type>"
	reportProbeSize   = 1024
)

// ProgressFunc 整理进度回调
type ProgressFunc func(moved, total int)

type Organizer struct {
	Fs           afero.Fs
	BatchSize    int
	Dedupe       bool // 目标已存在相同内容的文件时删除源文件
	SniffUnknown bool // 根据文件头识别无扩展名文件
	Progress     ProgressFunc

	batches map[string]*batch
}

// Result 整理结果
type Result struct {
	Moved      int
	Duplicates int
	PerType    map[string]int
	Report     string   // 移动到根目录的 carve 报告
	Failed     []string // 移动失败、留在原处的文件
	Removed    []string // 已删除的空 carve 目录
	Remaining  []string // 仍有文件而保留的 carve 目录
}

func New(fs afero.Fs, batchSize int) *Organizer {
	if batchSize <= 0 {
		batchSize = internal.DefaultBatchSize
	}
	return &Organizer{
		Fs:        fs,
		BatchSize: batchSize,
		batches:   make(map[string]*batch),
	}
}

// Reorganize 将保留的文件按扩展名移动到 root/<ext>/<n>/，每个子目录最多 BatchSize 个文件
func (o *Organizer) Reorganize(ctx context.Context, root string, kept map[string][]string) (Result, error) {
	result := Result{PerType: make(map[string]int)}

	plan := o.plan(kept)
	total := 0
	for _, paths := range plan {
		total += len(paths)
	}

	logger.Get().Info().Int("files", total).Int("types", len(plan)).Int("batch_size", o.BatchSize).Msg("开始整理文件")
	o.progress(0, total)

	done := 0
	if xml, ok := plan["xml"]; ok {
		remaining := xml[:0]
		for _, path := range xml {
			if o.isCarveReport(path) {
				dst, err := o.moveCarveReport(root, path)
				if err != nil {
					logger.Get().Warn().Err(err).Str("path", path).Msg("移动 carve 报告失败")
					result.Failed = append(result.Failed, path)
				} else {
					result.Report = dst
					result.Moved++
				}
				done++
				o.progress(done, total)
				continue
			}
			remaining = append(remaining, path)
		}
		plan["xml"] = remaining
	}

	tokens := make([]string, 0, len(plan))
	for token := range plan {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)

	for _, token := range tokens {
		for _, path := range plan[token] {
			if err := ctx.Err(); err != nil {
				return result, err
			}

			moved, duplicate, err := o.moveOne(root, token, path)
			switch {
			case err != nil:
				logger.Get().Warn().Err(err).Str("path", path).Msg("移动文件失败，保留在原处")
				result.Failed = append(result.Failed, path)
			case duplicate:
				result.Duplicates++
			case moved:
				result.Moved++
				result.PerType[token]++
			}

			done++
			o.progress(done, total)
		}
	}

	if err := ctx.Err(); err != nil {
		return result, err
	}

	removed, remaining, err := RemoveEmptyCarveFolders(o.Fs, root)
	result.Removed = removed
	result.Remaining = remaining
	if err != nil {
		return result, err
	}

	logger.Get().Info().
		Int("moved", result.Moved).
		Int("duplicates", result.Duplicates).
		Int("failed", len(result.Failed)).
		Int("removed_folders", len(removed)).
		Int("remaining_folders", len(remaining)).
		Msg("整理完成")

	return result, nil
}

// plan 复制保留列表，并在需要时为无扩展名文件识别类型
func (o *Organizer) plan(kept map[string][]string) map[string][]string {
	plan := make(map[string][]string, len(kept))
	for token, paths := range kept {
		if token == internal.UnknownToken && o.SniffUnknown {
			for _, path := range paths {
				ext, err := fileprocessor.DetectExtension(o.Fs, path)
				if err != nil || ext == "" {
					plan[token] = append(plan[token], path)
					continue
				}
				logger.Get().Debug().Str("path", path).Str("type", ext).Msg("识别无扩展名文件")
				plan[ext] = append(plan[ext], path)
			}
			continue
		}
		plan[token] = append(plan[token], paths...)
	}
	return plan
}

// moveOne 移动单个文件。移动失败不推进批次计数
func (o *Organizer) moveOne(root, token, src string) (moved, duplicate bool, err error) {
	b, err := o.batchFor(root, token)
	if err != nil {
		return false, false, err
	}

	dirPath := filepath.Join(root, token, fmt.Sprint(b.next(o.BatchSize)))
	if err := o.Fs.MkdirAll(dirPath, 0755); err != nil {
		return false, false, fmt.Errorf("创建目录失败: %w", err)
	}

	dst := filepath.Join(dirPath, filepath.Base(src))
	unique, err := fileprocessor.UniquePath(o.Fs, dst)
	if err != nil {
		return false, false, err
	}

	if unique != dst && o.Dedupe {
		same, err := fileprocessor.SameContent(o.Fs, src, dst)
		if err == nil && same {
			if err := o.Fs.Remove(src); err != nil {
				return false, false, &internal.FileOperationError{Op: "delete", Path: src, Err: err}
			}
			logger.Get().Debug().Str("path", src).Str("existing", dst).Msg("删除重复文件")
			return false, true, nil
		}
	}

	if err := fileprocessor.MoveFile(o.Fs, src, unique); err != nil {
		return false, false, &internal.FileOperationError{Op: "move", Path: src, Err: err}
	}

	b.count++
	logger.Get().Trace().Str("source", src).Str("destination", unique).Msg("文件已移动")
	return true, false, nil
}

func (o *Organizer) isCarveReport(path string) bool {
	if !strings.EqualFold(filepath.Base(path), CarveReportName) {
		return false
	}

	f, err := o.Fs.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	head := make([]byte, reportProbeSize)
	n, _ := io.ReadFull(f, head)
	return strings.Contains(string(head[:n]), carveReportMarker)
}

func (o *Organizer) moveCarveReport(root, src string) (string, error) {
	dst, err := fileprocessor.UniquePath(o.Fs, filepath.Join(root, CarveReportName))
	if err != nil {
		return "", err
	}
	if err := fileprocessor.MoveFile(o.Fs, src, dst); err != nil {
		return "", err
	}
	logger.Get().Info().Str("path", dst).Msg("carve 报告已移动到根目录")
	return dst, nil
}

func (o *Organizer) progress(moved, total int) {
	if o.Progress != nil && total > 0 {
		o.Progress(moved, total)
	}
}

// RemoveEmptyCarveFolders 删除不再包含文件的 carve 目录，返回已删除和保留的目录
func RemoveEmptyCarveFolders(fs afero.Fs, root string) (removed, remaining []string, err error) {
	folders, err := scanner.ListFolders(fs, root)
	if err != nil {
		return nil, nil, err
	}

	walker := scanner.NewFileWalker(fs)
	for _, folder := range folders {
		count, err := walker.CountFiles([]string{folder.Path})
		if err != nil {
			logger.Get().Warn().Err(err).Str("folder", folder.Name).Msg("无法检查 carve 目录")
			remaining = append(remaining, folder.Path)
			continue
		}

		if count > 0 {
			logger.Get().Warn().Str("folder", folder.Name).Int("files", count).Msg("carve 目录仍有文件，保留")
			remaining = append(remaining, folder.Path)
			continue
		}

		if err := fs.RemoveAll(folder.Path); err != nil {
			logger.Get().Warn().Err(err).Str("folder", folder.Name).Msg("删除空 carve 目录失败")
			remaining = append(remaining, folder.Path)
			continue
		}
		removed = append(removed, folder.Path)
	}

	return removed, remaining, nil
}
