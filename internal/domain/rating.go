package domain

// RatingRecord 是某个标题在外部评分服务中的元数据（最小可用集）。
//
// 约束：任何字段都允许缺失（标题没查到、或响应子字段无法解析）。
// “缺失”是合法的可表示状态，不是错误；零值即全缺失。
type RatingRecord struct {
	Rating  *float64 `json:"rating,omitempty"`  // 0–10
	Votes   *int     `json:"votes,omitempty"`   // 非负；缺失为 nil
	Genres  []string `json:"genres,omitempty"`  // 顺序无意义
	IMDbURL string   `json:"imdb_url,omitempty"`
	Year    string   `json:"year,omitempty"` // 维持服务端原始形态（例如 "2019" 或 "2010–2012"）
}

// HasRating 判断是否存在可用于排名的评分。
func (r RatingRecord) HasRating() bool {
	return r.Rating != nil
}

// Absent 判断记录是否全缺失（not-found / 降级后的结果）。
func (r RatingRecord) Absent() bool {
	return r.Rating == nil && r.Votes == nil && len(r.Genres) == 0 && r.IMDbURL == "" && r.Year == ""
}
