package render

import (
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/filmrank/internal/domain"
)

func pf(v float64) *float64 { return &v }
func pi(v int) *int         { return &v }

func TestHTML_RendersFields(t *testing.T) {
	ranked := []domain.RankedEntry{
		{
			EnrichedEntry: domain.EnrichedEntry{
				Entry: domain.CatalogEntry{
					Title:       "The Quiet Hour",
					PageURL:     "https://listing.test/episode/m1",
					Description: "A scientist races against time.",
					Thumbnail:   "https://img.test/m1.jpg",
				},
				Rating: domain.RatingRecord{
					Rating:  pf(7.5),
					Votes:   pi(1234567),
					Genres:  []string{"Drama", "Thriller"},
					IMDbURL: "https://www.imdb.com/title/tt0123456/",
					Year:    "2019",
				},
			},
			Combined: 75.0,
			Rank:     1,
		},
	}

	var b strings.Builder
	if err := HTML(&b, ranked, time.Date(2026, time.September, 1, 12, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("渲染失败：%v", err)
	}
	out := b.String()

	for _, want := range []string{
		"#1",
		"The Quiet Hour",
		"https://listing.test/episode/m1",
		"A scientist races against time.",
		"https://img.test/m1.jpg",
		"(2019)",
		"Drama",
		"Thriller",
		"https://www.imdb.com/title/tt0123456/",
		"IMDb 7.5",
		"1,234,567 votes",
		"75.0",
		"01 September 2026",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("渲染结果缺少 %q", want)
		}
	}
}

func TestHTML_EscapesMarkup(t *testing.T) {
	ranked := []domain.RankedEntry{
		{
			EnrichedEntry: domain.EnrichedEntry{
				Entry: domain.CatalogEntry{
					Title:   "<script>alert(1)</script>",
					PageURL: "https://listing.test/x",
				},
			},
			Combined: 50,
			Rank:     1,
		},
	}

	var b strings.Builder
	if err := HTML(&b, ranked, time.Now()); err != nil {
		t.Fatalf("渲染失败：%v", err)
	}
	if strings.Contains(b.String(), "<script>alert(1)</script>") {
		t.Fatalf("标题未转义")
	}
}

func TestHTML_EmptyList(t *testing.T) {
	var b strings.Builder
	if err := HTML(&b, nil, time.Now()); err != nil {
		t.Fatalf("渲染失败：%v", err)
	}
	if !strings.Contains(b.String(), "No rated movies found.") {
		t.Fatalf("空列表应有占位文案")
	}
}

func TestGroupThousands(t *testing.T) {
	cases := map[int]string{
		0:       "0",
		7:       "7",
		999:     "999",
		1000:    "1,000",
		1234:    "1,234",
		1234567: "1,234,567",
	}
	for in, want := range cases {
		if got := groupThousands(in); got != want {
			t.Fatalf("groupThousands(%d) 期望 %q 实际 %q", in, want, got)
		}
	}
}
