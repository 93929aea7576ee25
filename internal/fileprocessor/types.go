package fileprocessor

import (
	"sort"
	"time"

	"github.com/spf13/afero"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/pkg/rules"
	"github.com/moyu-x/carve-refinery/pkg/scanner"
)

// RecordSink 接收每条处置记录，例如 CSV 日志
type RecordSink interface {
	Write(rec internal.DispositionRecord) error
}

// Registry 记录本次运行中已处理的目录，保证每个目录只处置一次
type Registry struct {
	folders map[int]internal.FolderState
	failed  map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		folders: make(map[int]internal.FolderState),
		failed:  make(map[string]struct{}),
	}
}

// IsProcessed 目录是否已处置
func (r *Registry) IsProcessed(ordinal int) bool {
	state, ok := r.folders[ordinal]
	return ok && state != internal.FolderUnprocessed
}

// MarkProcessed 标记目录已处置，只会前进不会回退
func (r *Registry) MarkProcessed(ordinal int) {
	if r.IsProcessed(ordinal) {
		return
	}
	r.folders[ordinal] = internal.FolderDisposed
}

// MarkReorganized 标记目录已整理
func (r *Registry) MarkReorganized(ordinal int) {
	r.folders[ordinal] = internal.FolderReorganized
}

// State 返回目录状态
func (r *Registry) State(ordinal int) internal.FolderState {
	if state, ok := r.folders[ordinal]; ok {
		return state
	}
	return internal.FolderUnprocessed
}

// Processed 升序返回已处置的目录编号
func (r *Registry) Processed() []int {
	out := make([]int, 0, len(r.folders))
	for n := range r.folders {
		if r.IsProcessed(n) {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// MarkFailed 记录删除失败的文件
func (r *Registry) MarkFailed(path string) {
	r.failed[path] = struct{}{}
}

// IsFailed 文件是否删除失败过
func (r *Registry) IsFailed(path string) bool {
	_, ok := r.failed[path]
	return ok
}

// Processor 文件处理器，负责一次运行中的目录扫描、过滤和删除
type Processor struct {
	Root      string                   // 输出根目录
	Rules     rules.Rules              // 保留/排除规则
	Fs        afero.Fs                 // 文件系统接口，便于测试和抽象
	Policy    scanner.CompletionPolicy // 判断目录是否写完
	Registry  *Registry                // 已处理目录
	Summary   internal.RunSummary      // 累计统计
	KeptFiles map[string][]string      // 按扩展名分组的保留文件，供整理使用
	Audit     RecordSink               // 处置日志，可为空
	Reporter  internal.ProgressReporter
	Now       func() time.Time // 处置记录的时间来源

	walker         *scanner.FileWalker
	seen           map[string]struct{}
	foldersSeen    int
	filesProcessed int
}
