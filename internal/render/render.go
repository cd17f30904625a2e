// Package render 把排名结果渲染为静态 HTML 页面。
package render

import (
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"github.com/John-Robertt/filmrank/internal/domain"
)

//go:embed movies.html.tmpl
var pageTmpl string

// Page 是模板的根数据。
type Page struct {
	Movies      []Movie
	LastUpdated string
}

// Movie 是单条影片的展示数据，数值字段已格式化为字符串。
type Movie struct {
	Rank        int
	Title       string
	PageURL     string
	Description string
	Thumbnail   string
	Year        string
	Genres      []string
	IMDbURL     string
	Rating      string // 如 "7.5"，无则空
	Votes       string // 如 "1,234"，无则空
	Combined    string // 合成分（0–100），如 "75.0"
}

var tmpl = template.Must(template.New("movies").Parse(pageTmpl))

// HTML 渲染排名列表。finished 为报告的生成时间（展示用，取日期部分）。
func HTML(w io.Writer, ranked []domain.RankedEntry, finished time.Time) error {
	page := Page{
		Movies:      make([]Movie, 0, len(ranked)),
		LastUpdated: finished.Format("02 January 2006"),
	}
	for _, r := range ranked {
		page.Movies = append(page.Movies, toMovie(r))
	}
	return tmpl.Execute(w, page)
}

func toMovie(r domain.RankedEntry) Movie {
	m := Movie{
		Rank:        r.Rank,
		Title:       r.Entry.Title,
		PageURL:     r.Entry.PageURL,
		Description: r.Entry.Description,
		Thumbnail:   r.Entry.Thumbnail,
		Year:        r.Rating.Year,
		Genres:      r.Rating.Genres,
		IMDbURL:     r.Rating.IMDbURL,
		Combined:    fmt.Sprintf("%.1f", r.Combined),
	}
	if r.Rating.Rating != nil {
		m.Rating = fmt.Sprintf("%.1f", *r.Rating.Rating)
	}
	if r.Rating.Votes != nil {
		m.Votes = groupThousands(*r.Rating.Votes)
	}
	return m
}

// groupThousands 给正整数加千位分隔符。
func groupThousands(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
