package iplayer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/John-Robertt/filmrank/internal/infra/httpx"
)

const listingFixture = `<!DOCTYPE html>
<html><body>
<a class="content-item-root" href="/iplayer/episode/m0001/film-one"
   aria-label="Film One. Description: A quiet drama about weather. Duration: 94 mins">
  <div class="content-item-root__meta">  Film One  </div>
  <img class="rs-image__img" srcset="https://img.test/one-240.jpg 240w, https://img.test/one-480.jpg 480w"/>
</a>
<a class="content-item-root" href="https://www.bbc.co.uk/iplayer/episode/m0002/film-two"
   aria-label="Film Two. Description: Heist, but polite. Duration: 101 mins">
  <div class="content-item-root__meta">Film Two</div>
</a>
<a class="content-item-root" href="/iplayer/episode/m0003/broken">
  <div class="content-item-root__meta">   </div>
</a>
<ol class="pagination__list">
  <li><a class="button--numeral" href="?page=1">1</a></li>
  <li><a class="button--numeral" href="?page=2">2</a></li>
  <li><a class="pagination__ellipsis">…</a></li>
  <li><a class="button--numeral" href="?page=7">7</a></li>
</ol>
</body></html>`

func TestParse_Listing(t *testing.T) {
	var l Lister
	pg, err := l.Parse([]byte(listingFixture), "https://www.bbc.co.uk/iplayer/categories/films/a-z?page=1")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if len(pg.Entries) != 2 {
		t.Fatalf("期望 2 条有效条目，实际=%d", len(pg.Entries))
	}
	if pg.Skipped != 1 {
		t.Fatalf("期望丢弃 1 条（无标题），实际=%d", pg.Skipped)
	}

	e := pg.Entries[0]
	if e.Title != "Film One" {
		t.Fatalf("标题不符：%q", e.Title)
	}
	if e.PageURL != "https://www.bbc.co.uk/iplayer/episode/m0001/film-one" {
		t.Fatalf("相对链接应被还原为绝对 URL，实际=%q", e.PageURL)
	}
	if e.Description != "A quiet drama about weather" {
		t.Fatalf("描述不符：%q", e.Description)
	}
	if e.Thumbnail != "https://img.test/one-240.jpg" {
		t.Fatalf("缩略图应取 srcset 第一候选，实际=%q", e.Thumbnail)
	}

	if pg.Entries[1].PageURL != "https://www.bbc.co.uk/iplayer/episode/m0002/film-two" {
		t.Fatalf("绝对链接应原样保留，实际=%q", pg.Entries[1].PageURL)
	}
	if pg.Entries[1].Thumbnail != "" {
		t.Fatalf("无图条目缩略图应为空，实际=%q", pg.Entries[1].Thumbnail)
	}

	if !pg.HasPagination {
		t.Fatalf("期望识别出分页块")
	}
	if len(pg.PageNumbers) != 3 || pg.PageNumbers[0] != 1 || pg.PageNumbers[2] != 7 {
		t.Fatalf("页码不符：%v", pg.PageNumbers)
	}
}

func TestParse_NoPagination(t *testing.T) {
	html := `<html><body>
<a class="content-item-root" href="/x" aria-label="A. Description: d. Duration: 1 min">
  <div class="content-item-root__meta">A</div></a>
</body></html>`

	var l Lister
	pg, err := l.Parse([]byte(html), "https://example.test")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if pg.HasPagination {
		t.Fatalf("无分页块不应置 HasPagination")
	}
}

func TestParse_EmptyHTML(t *testing.T) {
	var l Lister
	if _, err := l.Parse(nil, "https://example.test"); err == nil {
		t.Fatalf("空 HTML 应报错")
	}
}

func TestDescriptionFromAria(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"T. Description: Some plot. Duration: 90 mins", "Some plot"},
		{"T. Description: Multi. Description: Real one. Duration: 5 mins", "Real one"},
		{"No anchors here", "No anchors here"},
		{"", ""},
	}
	for _, c := range cases {
		if got := descriptionFromAria(c.in); got != c.want {
			t.Fatalf("descriptionFromAria(%q)：期望 %q，实际 %q", c.in, c.want, got)
		}
	}
}

func TestFetch_PageParamAndStatus(t *testing.T) {
	var gotPage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		if gotPage == "9" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, "<html/>")
	}))
	defer srv.Close()

	l := Lister{BaseURL: srv.URL, ListingURL: srv.URL + "/films/a-z"}
	c := httpx.NewListingClient(5 * time.Second)

	b, pageURL, err := l.Fetch(context.Background(), 2, c)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if gotPage != "2" {
		t.Fatalf("期望 page=2，实际=%q", gotPage)
	}
	if len(b) == 0 || pageURL == "" {
		t.Fatalf("期望返回 html 与 pageURL")
	}

	if _, _, err := l.Fetch(context.Background(), 9, c); err == nil {
		t.Fatalf("非 2xx 应报错")
	} else if !httpx.IsStatus(err, http.StatusBadGateway) {
		t.Fatalf("期望 StatusError(502)，实际=%v", err)
	}
}
