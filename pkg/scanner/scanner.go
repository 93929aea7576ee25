package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/logger"
)

// CarveFolder 一个编号的 carve 输出目录
type CarveFolder struct {
	Ordinal int
	Path    string
	Name    string
}

// ParseOrdinal 从 recup_dir.N 中解析 N
func ParseOrdinal(name string) (int, bool) {
	if !strings.HasPrefix(name, internal.CarveFolderPrefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(name, internal.CarveFolderPrefix))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// ListFolders 按编号升序列出根目录下的所有 carve 目录
func ListFolders(fs afero.Fs, root string) ([]CarveFolder, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, &internal.FolderAccessError{Folder: root, Err: err}
	}

	var folders []CarveFolder
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, ok := ParseOrdinal(e.Name())
		if !ok {
			continue
		}
		folders = append(folders, CarveFolder{
			Ordinal: n,
			Path:    filepath.Join(root, e.Name()),
			Name:    e.Name(),
		})
	}

	// recup_dir.10 排在 recup_dir.9 之后
	sort.Slice(folders, func(i, j int) bool {
		return folders[i].Ordinal < folders[j].Ordinal
	})

	return folders, nil
}

// Newest 返回编号最大的目录
func Newest(folders []CarveFolder) (CarveFolder, bool) {
	if len(folders) == 0 {
		return CarveFolder{}, false
	}
	return folders[len(folders)-1], true
}

// ListCandidateFolders 返回可以处理的目录。policy 为 nil 时使用 NewestOpenPolicy
func ListCandidateFolders(fs afero.Fs, root string, includeNewest bool, policy CompletionPolicy) ([]CarveFolder, error) {
	folders, err := ListFolders(fs, root)
	if err != nil {
		return nil, err
	}
	return Candidates(fs, folders, includeNewest, policy), nil
}

// Candidates 从已列出的目录中筛选出已经写完的目录
func Candidates(fs afero.Fs, folders []CarveFolder, includeNewest bool, policy CompletionPolicy) []CarveFolder {
	if policy == nil {
		policy = NewestOpenPolicy{}
	}

	var out []CarveFolder
	for _, f := range folders {
		if policy.IsFinal(fs, folders, f, includeNewest) {
			out = append(out, f)
		}
	}

	logger.Get().Debug().
		Int("present", len(folders)).
		Int("candidates", len(out)).
		Bool("include_newest", includeNewest).
		Msg("扫描 carve 目录")

	return out
}

// FileWalker 遍历单个 carve 目录中的文件
type FileWalker struct {
	Fs afero.Fs
}

func NewFileWalker(fs afero.Fs) *FileWalker {
	return &FileWalker{Fs: fs}
}

// Walk 递归遍历 root 下的文件。无法读取的子路径会跳过并记录，
// root 本身不可读时返回错误
func (w *FileWalker) Walk(root string, callback func(entry internal.FileEntry) error) error {
	return afero.Walk(w.Fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return &internal.FolderAccessError{Folder: root, Err: err}
			}
			logger.Get().Warn().Err(err).Str("path", path).Msg("访问路径出错")
			return nil
		}

		if info.IsDir() {
			return nil
		}

		return callback(internal.FileEntry{
			Path: path,
			Name: info.Name(),
			Size: info.Size(),
		})
	})
}

// CountFiles 统计多个目录中的文件数量
func (w *FileWalker) CountFiles(dirs []string) (int, error) {
	count := 0
	for _, dir := range dirs {
		err := w.Walk(dir, func(internal.FileEntry) error {
			count++
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("统计文件数量: %w", err)
		}
	}
	return count, nil
}
