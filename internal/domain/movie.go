package domain

import "strings"

// CatalogEntry 是从片库列表页提取出的一部影片（每页 0..n 条）。
//
// 约束：
// - Title 非空是条目成立的前提；没有标题的条目在发现阶段直接丢弃
// - 创建后不可变；后续阶段只读消费
type CatalogEntry struct {
	Title       string `json:"title"`
	PageURL     string `json:"page_url"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail,omitempty"`
}

// Valid 判断条目是否可进入流水线（只看 Title，不做更多“聪明”校验）。
func (e CatalogEntry) Valid() bool {
	return strings.TrimSpace(e.Title) != ""
}

// EnrichedEntry 是 CatalogEntry 与外部评分元数据的 1:1 组合。
//
// 约束：每个输入 CatalogEntry 必须恰好产出一个 EnrichedEntry——
// 查询失败只会让 Rating 全缺失，绝不会让条目消失。
type EnrichedEntry struct {
	Entry  CatalogEntry `json:"entry"`
	Rating RatingRecord `json:"rating"`

	// LookupErr 记录查询阶段的非预期错误（空串表示正常）。
	// 该字段只用于 report/日志呈现；Rating 已按契约归零。
	LookupErr string `json:"-"`
}

// RankedEntry 是带综合分与名次的最终条目。
// 只有至少一个评分来源存在的条目才会出现在排序结果里。
type RankedEntry struct {
	EnrichedEntry

	Combined float64 `json:"combined"` // 0–100
	Rank     int     `json:"rank"`     // 从 1 开始
}
