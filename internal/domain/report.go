package domain

import (
	"sort"
	"time"

	json "github.com/goccy/go-json"
)

const (
	StatusRanked  = "ranked"
	StatusUnrated = "unrated"
	StatusFailed  = "failed"
)

const (
	ErrCodeFetchFailed   = "fetch_failed"
	ErrCodeParseFailed   = "parse_failed"
	ErrCodeLookupFailed  = "lookup_failed"
	ErrCodeIOFailed      = "io_failed"
	ErrCodeConfigInvalid = "config_invalid"
	ErrCodeMissingAPIKey = "missing_api_key"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	Path   string `json:"path"`
	DryRun bool   `json:"dry_run"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	Discovered int `json:"discovered"`
	Ranked     int `json:"ranked"`
	Unrated    int `json:"unrated"`
	Failed     int `json:"failed"`
}

// ItemResult 是单部影片的最终结果（成功与否都有一条）。
type ItemResult struct {
	Title   string `json:"title"`
	PageURL string `json:"page_url"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Rating   *float64 `json:"rating,omitempty"`
	Votes    *int     `json:"votes,omitempty"`
	Genres   []string `json:"genres,omitempty"`
	IMDbURL  string   `json:"imdb_url,omitempty"`
	Year     string   `json:"year,omitempty"`
	Combined *float64 `json:"combined,omitempty"`
	Rank     int      `json:"rank,omitempty"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：有名次的按 rank 升序在前；其余按 title 字典序在后
// 3) summary 由 items 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i], r.Items[j]
		if a.Rank > 0 && b.Rank > 0 {
			return a.Rank < b.Rank
		}
		if a.Rank > 0 {
			return true
		}
		if b.Rank > 0 {
			return false
		}
		return a.Title < b.Title
	})

	var s ReportSummary
	for _, it := range r.Items {
		if it.Title != "" {
			// 合成条目（例如配置错误）没有标题，不计入 discovered。
			s.Discovered++
		}
		switch it.Status {
		case StatusRanked:
			s.Ranked++
		case StatusUnrated:
			s.Unrated++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传默认行为。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
