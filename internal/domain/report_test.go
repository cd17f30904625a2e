package domain

import (
	"testing"
	"time"
)

func f64(v float64) *float64 { return &v }

func TestRunReport_Finalize_SortAndSummary(t *testing.T) {
	rr := RunReport{
		StartedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600)),
		FinishedAt: time.Date(2026, 3, 1, 12, 5, 0, 0, time.FixedZone("X", 3600)),
		Items: []ItemResult{
			{Title: "Zeta", Status: StatusUnrated},
			{Title: "Beta", Status: StatusRanked, Rank: 2, Combined: f64(70)},
			{Title: "", Status: StatusFailed, ErrorCode: ErrCodeConfigInvalid},
			{Title: "Alpha", Status: StatusRanked, Rank: 1, Combined: f64(80)},
			{Title: "Mid", Status: StatusFailed, ErrorCode: ErrCodeLookupFailed},
		},
	}
	rr.Finalize()

	if rr.StartedAt.Location() != time.UTC || rr.FinishedAt.Location() != time.UTC {
		t.Fatalf("期望时间统一为 UTC")
	}

	got := make([]string, 0, len(rr.Items))
	for _, it := range rr.Items {
		got = append(got, it.Title)
	}
	want := []string{"Alpha", "Beta", "", "Mid", "Zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("排序第 %d 位期望 %q，实际 %q（全部=%v）", i, want[i], got[i], got)
		}
	}

	if rr.Summary.Discovered != 4 {
		t.Fatalf("期望 discovered=4（合成条目不计入），实际=%d", rr.Summary.Discovered)
	}
	if rr.Summary.Ranked != 2 || rr.Summary.Unrated != 1 || rr.Summary.Failed != 2 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
}

func TestRatingRecord_Absent(t *testing.T) {
	if !(RatingRecord{}).Absent() {
		t.Fatalf("零值应视为全缺失")
	}
	if (RatingRecord{Rating: f64(7.5)}).Absent() {
		t.Fatalf("有评分不应视为全缺失")
	}
	if (RatingRecord{Year: "2019"}).Absent() {
		t.Fatalf("有年份不应视为全缺失")
	}
	if (RatingRecord{}).HasRating() {
		t.Fatalf("零值不应有可用评分")
	}
}

func TestCatalogEntry_Valid(t *testing.T) {
	if (CatalogEntry{Title: "  "}).Valid() {
		t.Fatalf("空白标题不应有效")
	}
	if !(CatalogEntry{Title: "A Film"}).Valid() {
		t.Fatalf("有标题应有效")
	}
}
