package fileprocessor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/logger"
	"github.com/moyu-x/carve-refinery/pkg/rules"
	"github.com/moyu-x/carve-refinery/pkg/scanner"
)

// New 创建新的文件处理器
// fs: 文件系统
// root: carve 输出根目录
// r: 保留/排除规则，两个集合都为空时不删除任何文件
func New(fs afero.Fs, root string, r rules.Rules) (*Processor, error) {
	if root == "" {
		return nil, internal.ConfigError("未指定输出根目录")
	}

	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &Processor{
		Root:      root,
		Rules:     r,
		Fs:        fs,
		Policy:    scanner.NewestOpenPolicy{},
		Registry:  NewRegistry(),
		KeptFiles: make(map[string][]string),
		Reporter:  internal.NopReporter,
		walker:    scanner.NewFileWalker(fs),
		seen:      make(map[string]struct{}),
		Now:       time.Now,
	}, nil
}

// ProcessOnce 扫描一遍所有可处理的目录，返回本次扫描的统计
// includeNewest 为 true 时（结束或一次性处理）编号最大的目录也会处理
func (p *Processor) ProcessOnce(ctx context.Context, includeNewest bool) (internal.RunSummary, error) {
	before := p.Summary
	before.Failures = nil
	failedBefore := len(p.Summary.Failures)

	pass := func() internal.RunSummary {
		s := internal.RunSummary{
			FoldersProcessed: p.Summary.FoldersProcessed - before.FoldersProcessed,
			FilesKept:        p.Summary.FilesKept - before.FilesKept,
			FilesDeleted:     p.Summary.FilesDeleted - before.FilesDeleted,
			BytesKept:        p.Summary.BytesKept - before.BytesKept,
			BytesDeleted:     p.Summary.BytesDeleted - before.BytesDeleted,
		}
		s.Failures = append(s.Failures, p.Summary.Failures[failedBefore:]...)
		return s
	}

	folders, err := scanner.ListFolders(p.Fs, p.Root)
	if err != nil {
		logger.Get().Warn().Err(err).Str("root", p.Root).Msg("无法读取输出根目录，下次轮询重试")
		return pass(), err
	}
	p.foldersSeen = len(folders)

	newest, _ := scanner.Newest(folders)
	candidates := scanner.Candidates(p.Fs, folders, includeNewest, p.Policy)

	for _, folder := range candidates {
		isNewest := folder.Ordinal == newest.Ordinal

		if p.Registry.IsProcessed(folder.Ordinal) && !(includeNewest && isNewest) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return pass(), err
		}

		if err := p.processFolder(ctx, folder); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				logger.Get().Info().Str("folder", folder.Name).Msg("处理被取消，目录未标记")
				return pass(), err
			}
			logger.Get().Warn().Err(err).Str("folder", folder.Name).Msg("跳过目录，下次轮询重试")
			continue
		}

		if !includeNewest && isNewest {
			continue
		}

		if !p.Registry.IsProcessed(folder.Ordinal) {
			p.Registry.MarkProcessed(folder.Ordinal)
			p.Summary.FoldersProcessed++
		}
	}

	return pass(), nil
}

// processFolder 处置单个目录中的所有文件
func (p *Processor) processFolder(ctx context.Context, folder scanner.CarveFolder) error {
	logger.Get().Info().Str("folder", folder.Name).Msgf("处理 %s", folder.Path)

	count := 0
	err := p.walker.Walk(folder.Path, func(entry internal.FileEntry) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if p.Registry.IsFailed(entry.Path) {
			return nil
		}
		if _, ok := p.seen[entry.Path]; ok {
			return nil
		}

		decision := rules.Keep
		if p.Rules.Active() {
			decision = rules.Classify(entry.Name, p.Rules)
		}

		rec := p.Dispose(folder.Name, entry, decision)

		count++
		p.filesProcessed++
		p.Reporter.Report(internal.Progress{
			FoldersSeen:    p.foldersSeen,
			FilesProcessed: p.filesProcessed,
			BytesKept:      p.Summary.BytesKept,
			BytesDeleted:   p.Summary.BytesDeleted,
			Activity:       fmt.Sprintf("Processing %s (%d files)", folder.Name, count),
			Record:         &rec,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("处理目录 %s: %w", folder.Name, err)
	}

	logger.Get().Debug().Str("folder", folder.Name).Int("files", count).Msg("目录处理完成")
	return nil
}

// FoldersSeen 最近一次扫描看到的 carve 目录数
func (p *Processor) FoldersSeen() int {
	return p.foldersSeen
}

// FilesProcessed 本次运行已处置的文件数
func (p *Processor) FilesProcessed() int {
	return p.filesProcessed
}
