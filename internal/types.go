package internal

import "time"

// 文件处置结果
type Outcome string

const (
	OutcomeKept         Outcome = "kept"
	OutcomeDeleted      Outcome = "deleted"
	OutcomeDeleteFailed Outcome = "delete-failed"
)

// 目录处理状态
type FolderState string

const (
	FolderUnprocessed FolderState = "unprocessed"
	FolderDisposed    FolderState = "disposed"
	FolderReorganized FolderState = "reorganized"
)

// FileEntry 扫描时 carve 目录中的单个文件
type FileEntry struct {
	Path string
	Name string
	Size int64
}

// DispositionRecord 单个文件的处置记录
type DispositionRecord struct {
	Path      string
	Folder    string
	Extension string
	Outcome   Outcome
	Size      int64
	Timestamp time.Time
	Err       error
}

// RunSummary 运行统计
type RunSummary struct {
	FoldersProcessed int
	FilesKept        int
	FilesDeleted     int
	BytesKept        int64
	BytesDeleted     int64
	Failures         []string
}

// Add 将一条处置记录计入统计
func (s *RunSummary) Add(rec DispositionRecord) {
	switch rec.Outcome {
	case OutcomeDeleted:
		s.FilesDeleted++
		s.BytesDeleted += rec.Size
	case OutcomeDeleteFailed:
		s.FilesKept++
		s.BytesKept += rec.Size
		s.Failures = append(s.Failures, rec.Path)
	default:
		s.FilesKept++
		s.BytesKept += rec.Size
	}
}

// TotalBytes 已处置文件的总字节数
func (s RunSummary) TotalBytes() int64 {
	return s.BytesKept + s.BytesDeleted
}

// SpaceSavedGB 以 GB 计的释放空间
func (s RunSummary) SpaceSavedGB() float64 {
	if s.BytesDeleted == 0 {
		return 0
	}
	return float64(s.BytesDeleted) / (1024 * 1024 * 1024)
}

// 进度更新
type Progress struct {
	FoldersSeen    int
	FilesProcessed int
	BytesKept      int64
	BytesDeleted   int64
	Activity       string
	Record         *DispositionRecord

	// 整理阶段的进度
	Moved  int
	ToMove int
}

// ProgressReporter 接收每个文件的进度通知
type ProgressReporter interface {
	Report(p Progress)
}

// ProgressFunc 将普通函数适配为 ProgressReporter
type ProgressFunc func(p Progress)

func (f ProgressFunc) Report(p Progress) {
	if f != nil {
		f(p)
	}
}

// NopReporter 丢弃所有进度通知
var NopReporter ProgressReporter = ProgressFunc(nil)
