package scanner

import (
	"path/filepath"

	"github.com/spf13/afero"
)

// CompletionPolicy 判断一个 carve 目录是否已经写完
type CompletionPolicy interface {
	IsFinal(fs afero.Fs, present []CarveFolder, folder CarveFolder, includeNewest bool) bool
}

// NewestOpenPolicy 认为编号最大的目录仍在写入
type NewestOpenPolicy struct{}

func (NewestOpenPolicy) IsFinal(_ afero.Fs, present []CarveFolder, folder CarveFolder, includeNewest bool) bool {
	if includeNewest {
		return true
	}
	newest, ok := Newest(present)
	return ok && folder.Ordinal < newest.Ordinal
}

// LockFilePolicy 在 NewestOpenPolicy 的基础上，目录中存在标记文件时也视为未完成
type LockFilePolicy struct {
	Name string
}

func (p LockFilePolicy) IsFinal(fs afero.Fs, present []CarveFolder, folder CarveFolder, includeNewest bool) bool {
	if !(NewestOpenPolicy{}).IsFinal(fs, present, folder, includeNewest) {
		return false
	}
	if includeNewest || p.Name == "" {
		return true
	}
	exists, err := afero.Exists(fs, filepath.Join(folder.Path, p.Name))
	return err == nil && !exists
}
