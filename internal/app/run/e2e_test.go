package run

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/John-Robertt/filmrank/internal/config"
	"github.com/John-Robertt/filmrank/internal/domain"
)

const listingFixture = `<!DOCTYPE html>
<html><body>
<a class="content-item-root" href="/iplayer/episode/m0001/alpha-film"
   aria-label="Alpha Film. Description: A quiet drama. Duration: 94 mins">
  <div class="content-item-root__meta">Alpha Film</div>
  <img class="rs-image__img" srcset="https://img.test/alpha-240.jpg 240w"/>
</a>
<a class="content-item-root" href="/iplayer/episode/m0002/beta-film"
   aria-label="Beta Film. Description: Heist, but polite. Duration: 101 mins">
  <div class="content-item-root__meta">Beta Film</div>
</a>
</body></html>`

// newStubServers 起一个单页列表站与一个只认识 Alpha Film 的评分服务。
func newStubServers(t *testing.T) (listing, api *httptest.Server) {
	t.Helper()

	listing = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingFixture)
	}))
	t.Cleanup(listing.Close)

	api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("t") == "Alpha Film" {
			fmt.Fprint(w, `{"Response":"True","imdbRating":"8.0","imdbVotes":"2,000","Genre":"Drama","imdbID":"tt0000001","Year":"2020"}`)
			return
		}
		fmt.Fprint(w, `{"Response":"False","Error":"Movie not found!"}`)
	}))
	t.Cleanup(api.Close)

	return listing, api
}

func testConfig(root string, listing, api *httptest.Server, apply bool) config.EffectiveConfig {
	return config.EffectiveConfig{
		Path:        root,
		Apply:       apply,
		ListingURL:  listing.URL + "/films",
		BaseURL:     listing.URL,
		OMDbBaseURL: api.URL,
		APIKey:      "k",
		Concurrency: 2,
		MaxPages:    5,
		IMDbWeight:  0.5,
		RTWeight:    0.5,
	}
}

func TestExecute_DryRun_NoWrites(t *testing.T) {
	root := t.TempDir()
	listing, api := newStubServers(t)

	rr := Execute(context.Background(), testConfig(root, listing, api, false))

	if _, err := os.Stat(filepath.Join(root, "output")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建 output/，但 Stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "cache")); !os.IsNotExist(err) {
		t.Fatalf("dry-run 不应创建 cache/，但 Stat err=%v", err)
	}

	if !rr.DryRun {
		t.Fatalf("期望 dry_run=true")
	}
	if rr.Summary.Discovered != 2 || rr.Summary.Ranked != 1 || rr.Summary.Unrated != 1 || rr.Summary.Failed != 0 {
		t.Fatalf("summary 不符：%+v items=%+v", rr.Summary, rr.Items)
	}
	if len(rr.Items) != 2 {
		t.Fatalf("期望 2 个 item，实际 %d", len(rr.Items))
	}

	// Finalize 后有名次的在前。
	alpha := rr.Items[0]
	if alpha.Title != "Alpha Film" || alpha.Status != domain.StatusRanked || alpha.Rank != 1 {
		t.Fatalf("Alpha 条目不符：%+v", alpha)
	}
	if alpha.Rating == nil || *alpha.Rating != 8.0 {
		t.Fatalf("Alpha 评分不符：%+v", alpha.Rating)
	}
	if alpha.Combined == nil || *alpha.Combined != 80.0 {
		t.Fatalf("Alpha 综合分不符：%+v", alpha.Combined)
	}
	if alpha.IMDbURL != "https://www.imdb.com/title/tt0000001" {
		t.Fatalf("Alpha IMDb 链接不符：%q", alpha.IMDbURL)
	}

	beta := rr.Items[1]
	if beta.Title != "Beta Film" || beta.Status != domain.StatusUnrated || beta.Rank != 0 {
		t.Fatalf("Beta 条目不符：%+v", beta)
	}
	if beta.Rating != nil || beta.Combined != nil {
		t.Fatalf("未命中条目不应有评分：%+v", beta)
	}
}

func TestExecute_Apply_WritesPageAndCache(t *testing.T) {
	root := t.TempDir()
	listing, api := newStubServers(t)

	rr := Execute(context.Background(), testConfig(root, listing, api, true))

	if rr.Summary.Failed != 0 {
		t.Fatalf("不期望失败：%+v", rr.Items)
	}

	page, err := os.ReadFile(filepath.Join(root, "output", "movies.html"))
	if err != nil {
		t.Fatalf("期望写出 movies.html：%v", err)
	}
	if !strings.Contains(string(page), "Alpha Film") {
		t.Fatalf("页面应包含上榜影片")
	}
	if strings.Contains(string(page), "Beta Film") {
		t.Fatalf("无评分影片不应出现在页面里")
	}

	// 只缓存真正带评分的结果。
	if _, err := os.Stat(filepath.Join(root, "cache", "ratings", "omdb", "alpha-film.json")); err != nil {
		t.Fatalf("期望写出评分缓存：%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "cache", "ratings", "omdb", "beta-film.json")); !os.IsNotExist(err) {
		t.Fatalf("未命中结果不应进缓存，但 Stat err=%v", err)
	}
}

func TestExecute_Apply_CacheHitSkipsNetwork(t *testing.T) {
	root := t.TempDir()
	listing, _ := newStubServers(t)

	var apiCalls atomic.Int32
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		fmt.Fprint(w, `{"Response":"False","Error":"Movie not found!"}`)
	}))
	t.Cleanup(api.Close)

	cacheDir := filepath.Join(root, "cache", "ratings", "omdb")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		t.Fatalf("创建缓存目录失败：%v", err)
	}
	for _, slug := range []string{"alpha-film", "beta-film"} {
		rec := `{"rating":7.0,"votes":100,"genres":["Drama"],"imdb_url":"https://www.imdb.com/title/tt0000009/","year":"2018"}`
		if err := os.WriteFile(filepath.Join(cacheDir, slug+".json"), []byte(rec), 0o644); err != nil {
			t.Fatalf("写入缓存失败：%v", err)
		}
	}

	rr := Execute(context.Background(), testConfig(root, listing, api, true))

	if n := apiCalls.Load(); n != 0 {
		t.Fatalf("缓存命中时不应打评分服务，实际调用 %d 次", n)
	}
	if rr.Summary.Ranked != 2 {
		t.Fatalf("两部影片都应凭缓存上榜：%+v", rr.Summary)
	}
}

func TestExecute_InvalidAPIKey_FatalSyntheticItem(t *testing.T) {
	root := t.TempDir()
	listing, _ := newStubServers(t)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(api.Close)

	rr := Execute(context.Background(), testConfig(root, listing, api, false))

	if len(rr.Items) != 1 {
		t.Fatalf("配置性故障应收敛为单条合成失败，实际 %d 条", len(rr.Items))
	}
	it := rr.Items[0]
	if it.Status != domain.StatusFailed || it.ErrorCode != domain.ErrCodeConfigInvalid {
		t.Fatalf("合成条目不符：%+v", it)
	}
	if rr.Summary.Discovered != 0 || rr.Summary.Failed != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
}
