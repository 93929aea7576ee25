package internal

import "time"

const (
	// carve 目录名前缀，例如 recup_dir.1
	CarveFolderPrefix = "recup_dir."

	// 默认轮询间隔
	DefaultPollInterval = 5 * time.Second

	// 整理时每个子目录的默认文件数
	DefaultBatchSize = 500

	// 无扩展名文件的分类名
	UnknownToken = "unknown"

	// 历史数据库默认路径
	DefaultHistoryPath = "~/.carve-refinery/history.db"
)
