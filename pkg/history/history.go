// Package history keeps a record of finished runs in a local sqlite database.
package history

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/moyu-x/carve-refinery/internal"
	"github.com/moyu-x/carve-refinery/internal/logger"
)

// RunRecord 一次运行的统计
type RunRecord struct {
	ID               int64     `gorm:"primaryKey"`
	RunID            string    `gorm:"uniqueIndex;not null"`
	Root             string    `gorm:"index;not null"`
	Mode             string    `gorm:"not null"`
	KeepRules        string
	ExcludeRules     string
	FoldersProcessed int
	FilesKept        int
	FilesDeleted     int
	DeleteFailures   int
	BytesKept        int64
	BytesDeleted     int64
	FilesMoved       int
	StartedAt        time.Time `gorm:"not null"`
	FinishedAt       time.Time `gorm:"not null"`
}

func (RunRecord) TableName() string {
	return "runs"
}

// Summary 转换为运行统计
func (r RunRecord) Summary() internal.RunSummary {
	return internal.RunSummary{
		FoldersProcessed: r.FoldersProcessed,
		FilesKept:        r.FilesKept,
		FilesDeleted:     r.FilesDeleted,
		BytesKept:        r.BytesKept,
		BytesDeleted:     r.BytesDeleted,
	}
}

type Store struct {
	db *gorm.DB
}

// Open 打开（必要时创建）历史数据库
func Open(dbPath string) (*Store, error) {
	expandedPath, err := ExpandPath(dbPath)
	if err != nil {
		logger.Get().Error().Err(err).Msg("扩展数据库路径失败")
		return nil, err
	}

	logger.Get().Debug().Str("path", expandedPath).Msg("打开历史数据库")

	if err := os.MkdirAll(filepath.Dir(expandedPath), 0755); err != nil {
		logger.Get().Error().Err(err).Str("dir", filepath.Dir(expandedPath)).Msg("创建数据库目录失败")
		return nil, err
	}

	db, err := gorm.Open(sqlite.Open(expandedPath+"?_journal_mode=WAL"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Get().Error().Err(err).Msg("打开数据库连接失败")
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Get().Error().Err(err).Msg("获取数据库连接失败")
		return nil, err
	}

	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		logger.Get().Error().Err(err).Msg("创建数据库表失败")
		return nil, err
	}

	return &Store{db: db}, nil
}

// ExpandPath 展开以 ~/ 开头的路径
func ExpandPath(path string) (string, error) {
	if len(path) >= 2 && path[0] == '~' && (path[1] == '/' || path[1] == '\\') {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// Record 保存一次运行
func (s *Store) Record(rec *RunRecord) error {
	if err := s.db.Create(rec).Error; err != nil {
		logger.Get().Error().Err(err).Str("run_id", rec.RunID).Msg("保存运行记录失败")
		return err
	}

	logger.Get().Debug().Str("run_id", rec.RunID).Str("root", rec.Root).Msg("运行记录已保存")
	return nil
}

// Recent 按结束时间倒序返回最近的运行，root 非空时只返回该目录的运行
func (s *Store) Recent(root string, limit int) ([]RunRecord, error) {
	q := s.db.Order("finished_at desc, id desc")
	if root = strings.TrimSpace(root); root != "" {
		q = q.Where("root = ?", root)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var runs []RunRecord
	if err := q.Find(&runs).Error; err != nil {
		logger.Get().Error().Err(err).Msg("查询运行记录失败")
		return nil, err
	}
	return runs, nil
}

// Totals 汇总所有运行释放的空间
func (s *Store) Totals() (internal.RunSummary, error) {
	var total struct {
		FoldersProcessed int
		FilesKept        int
		FilesDeleted     int
		BytesKept        int64
		BytesDeleted     int64
	}
	err := s.db.Model(&RunRecord{}).
		Select("COALESCE(SUM(folders_processed),0) AS folders_processed, " +
			"COALESCE(SUM(files_kept),0) AS files_kept, " +
			"COALESCE(SUM(files_deleted),0) AS files_deleted, " +
			"COALESCE(SUM(bytes_kept),0) AS bytes_kept, " +
			"COALESCE(SUM(bytes_deleted),0) AS bytes_deleted").
		Scan(&total).Error
	if err != nil {
		logger.Get().Error().Err(err).Msg("汇总运行记录失败")
		return internal.RunSummary{}, err
	}
	return internal.RunSummary{
		FoldersProcessed: total.FoldersProcessed,
		FilesKept:        total.FilesKept,
		FilesDeleted:     total.FilesDeleted,
		BytesKept:        total.BytesKept,
		BytesDeleted:     total.BytesDeleted,
	}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		logger.Get().Error().Err(err).Msg("获取数据库连接失败")
		return err
	}
	return sqlDB.Close()
}
