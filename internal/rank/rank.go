package rank

import (
	"sort"

	"github.com/John-Robertt/filmrank/internal/domain"
)

// Source 是一个评分来源：从 EnrichedEntry 中取出归一化到 0–100 的分值。
//
// 约束：
// - Score 返回 nil 表示该来源对此条目缺失（不是 0 分）
// - Weight 只在来源存在时参与加权；权重按“在场来源”重新归一
type Source struct {
	Name   string
	Weight float64
	Score  func(domain.EnrichedEntry) *float64
}

// IMDbSource 构造 IMDb 来源（0–10 量表 ×10 归一到 0–100）。
func IMDbSource(weight float64) Source {
	return Source{
		Name:   "imdb",
		Weight: weight,
		Score: func(e domain.EnrichedEntry) *float64 {
			if e.Rating.Rating == nil {
				return nil
			}
			v := *e.Rating.Rating * 10
			return &v
		},
	}
}

// RottenTomatoesSource 是第二评分源的扩展位：量表本身就是 0–100。
// 数据通路尚未接入，当前对所有条目都返回缺失——加权规则保证它不拖累 IMDb 单源条目。
func RottenTomatoesSource(weight float64) Source {
	return Source{
		Name:   "rottentomatoes",
		Weight: weight,
		Score:  func(domain.EnrichedEntry) *float64 { return nil },
	}
}

// Combine 计算单个条目的综合分。
//
// 规则：combined = Σ(w_i * s_i) / Σ(w_i)，只对“在场”的来源求和——
// 单源在场时该来源的归一分就是综合分，不会因缺失项被无声打折。
// 所有来源都缺失时返回 nil（条目将被排除出排序结果）。
func Combine(sources []Source, e domain.EnrichedEntry) *float64 {
	var sum, wsum float64
	for _, src := range sources {
		if src.Score == nil || src.Weight <= 0 {
			continue
		}
		s := src.Score(e)
		if s == nil {
			continue
		}
		sum += src.Weight * *s
		wsum += src.Weight
	}
	if wsum == 0 {
		return nil
	}
	v := sum / wsum
	return &v
}

// Rank 按综合分对条目做严格降序排列并编号。
//
// - 没有任何来源分的条目整体排除（不是排到末尾）
// - 同分条目保持输入相对顺序（稳定排序）
// - 对已排序序列再次 Rank 得到相同顺序（幂等）
func Rank(sources []Source, entries []domain.EnrichedEntry) []domain.RankedEntry {
	ranked := make([]domain.RankedEntry, 0, len(entries))
	for _, e := range entries {
		c := Combine(sources, e)
		if c == nil {
			continue
		}
		ranked = append(ranked, domain.RankedEntry{EnrichedEntry: e, Combined: *c})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Combined > ranked[j].Combined
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}
