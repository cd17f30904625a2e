package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/John-Robertt/filmrank/internal/infra/fsx"
)

// Store 提供 <path>/cache/ 下的评分查询缓存读写。
//
// 约束：
// - dry-run：只允许读（ReadOnly=true）
// - apply：允许写（ReadOnly=false）
//
// 缓存按 (source, title) 定位；title 会被规范化为安全文件名。
// 不同标题规范化后撞名是可接受的（内容是同一服务的响应，代价只是少打一次网络）。
type Store struct {
	Root     string // <path>（运行根目录）
	ReadOnly bool
}

var ErrReadOnly = errors.New("cache: read-only")

func New(root string, readOnly bool) Store {
	return Store{
		Root:     filepath.Clean(strings.TrimSpace(root)),
		ReadOnly: readOnly,
	}
}

// RatingPath 返回某标题评分缓存的绝对路径。
func (s Store) RatingPath(source, title string) (string, error) {
	src, err := cleanSource(source)
	if err != nil {
		return "", err
	}
	slug := TitleSlug(title)
	if slug == "" {
		return "", fmt.Errorf("title 不能为空")
	}
	return filepath.Join(s.Root, "cache", "ratings", src, slug+".json"), nil
}

// ReadRating 读取缓存的评分 JSON；不存在不算错误。
func (s Store) ReadRating(source, title string) ([]byte, bool, error) {
	path, err := s.RatingPath(source, title)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// WriteRating 原子写入评分 JSON（覆盖旧值）。
func (s Store) WriteRating(source, title string, data []byte) error {
	if s.ReadOnly {
		return ErrReadOnly
	}
	src, err := cleanSource(source)
	if err != nil {
		return err
	}
	slug := TitleSlug(title)
	if slug == "" {
		return fmt.Errorf("title 不能为空")
	}
	dir := filepath.Join(s.Root, "cache", "ratings", src)
	return fsx.WriteFileAtomicReplace(dir, slug+".json", data)
}

var sourceNameRE = regexp.MustCompile(`^[a-z0-9_]+$`)

func cleanSource(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", fmt.Errorf("source 不能为空")
	}
	// 最小约束：避免路径穿越；source 名称本身是枚举（omdb），这里不做更多“聪明”处理。
	if !sourceNameRE.MatchString(s) {
		return "", fmt.Errorf("非法 source：%q", s)
	}
	return s, nil
}

var slugSqueezeRE = regexp.MustCompile(`-+`)

// TitleSlug 把任意标题规范化为安全文件名：小写、非字母数字折叠为 '-'。
// 返回空串表示标题没有任何可用字符。
func TitleSlug(title string) string {
	title = strings.ToLower(strings.TrimSpace(title))
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := slugSqueezeRE.ReplaceAllString(b.String(), "-")
	return strings.Trim(out, "-")
}
