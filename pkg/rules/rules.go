// Package rules decides whether a recovered file is kept or deleted from
// keep/exclude extension lists.
package rules

import (
	"sort"
	"strings"

	"github.com/moyu-x/carve-refinery/internal"
)

type Decision int

const (
	Keep Decision = iota
	Delete
)

func (d Decision) String() string {
	if d == Delete {
		return "delete"
	}
	return "keep"
}

// sqlite 伴随文件，整理时和主库放在一起
var sqliteSidecars = []string{"shm", "wal", "journal"}

// Rules 保留/排除扩展名集合
type Rules struct {
	Keep    map[string]struct{}
	Exclude map[string]struct{}
}

// New 根据扩展名列表创建规则，扩展名统一小写并去掉前导点
func New(keep, exclude []string) Rules {
	return Rules{
		Keep:    toSet(keep),
		Exclude: toSet(exclude),
	}
}

// Parse 解析逗号或换行分隔的扩展名列表
func Parse(keep, exclude string) Rules {
	return New(ParseList(keep), ParseList(exclude))
}

// ParseList 解析 "jpg, .PNG\ntar.gz" 形式的列表
func ParseList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r' || r == ';'
	})

	var out []string
	for _, f := range fields {
		if tok := normalize(f); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func normalize(tok string) string {
	return strings.TrimLeft(strings.ToLower(strings.TrimSpace(tok)), ".")
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.TrimLeft(strings.ToLower(strings.TrimSpace(t)), ".")
		set[t] = struct{}{}
	}
	return set
}

// Active 至少有一个集合非空时过滤才生效
func (r Rules) Active() bool {
	return len(r.Keep) > 0 || len(r.Exclude) > 0
}

// KeepList 排序后的保留列表
func (r Rules) KeepList() []string { return sorted(r.Keep) }

// ExcludeList 排序后的排除列表
func (r Rules) ExcludeList() []string { return sorted(r.Exclude) }

func sorted(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SuffixTokens 返回文件名所有的点后缀，从短到长。
// archive.xml.gz -> [gz xml.gz]；没有点的文件名返回 [""]
func SuffixTokens(name string) []string {
	lower := strings.ToLower(name)
	parts := strings.Split(lower, ".")
	if len(parts) == 1 {
		return []string{""}
	}

	tokens := make([]string, 0, len(parts)-1)
	for i := len(parts) - 1; i >= 1; i-- {
		tokens = append(tokens, strings.Join(parts[i:], "."))
	}
	return tokens
}

// Classify 判断文件保留还是删除。排除规则总是优先
func Classify(name string, r Rules) Decision {
	if !r.Active() {
		return Keep
	}

	tokens := SuffixTokens(name)

	if len(r.Exclude) > 0 && matchAny(tokens, r.Exclude) != "" {
		return Delete
	}

	if len(r.Keep) > 0 {
		if _, ok := matchToken(tokens, r.Keep); !ok {
			return Delete
		}
	}

	return Keep
}

// PrimaryToken 返回用于整理和日志的扩展名
func PrimaryToken(name string, r Rules) string {
	tokens := SuffixTokens(name)

	if tok := matchAny(tokens, r.Exclude); tok != "" {
		return tok
	}

	if tok, ok := matchToken(tokens, r.Keep); ok && tok != "" {
		return tok
	}

	lower := strings.ToLower(name)
	for _, side := range sqliteSidecars {
		if strings.HasSuffix(lower, ".sqlite-"+side) {
			return "sqlite"
		}
	}

	if tokens[0] == "" {
		return internal.UnknownToken
	}
	return tokens[0]
}

// matchToken 返回最长的匹配后缀
func matchToken(tokens []string, set map[string]struct{}) (string, bool) {
	match, found := "", false
	for _, t := range tokens {
		if _, ok := set[t]; ok {
			match, found = t, true
		}
	}
	return match, found
}

func matchAny(tokens []string, set map[string]struct{}) string {
	tok, ok := matchToken(tokens, set)
	if !ok {
		return ""
	}
	if tok == "" {
		return internal.UnknownToken
	}
	return tok
}
