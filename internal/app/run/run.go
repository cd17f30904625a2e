package run

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/John-Robertt/filmrank/internal/catalog"
	"github.com/John-Robertt/filmrank/internal/catalog/iplayer"
	"github.com/John-Robertt/filmrank/internal/config"
	"github.com/John-Robertt/filmrank/internal/domain"
	"github.com/John-Robertt/filmrank/internal/enrich"
	"github.com/John-Robertt/filmrank/internal/infra/cache"
	"github.com/John-Robertt/filmrank/internal/infra/fsx"
	"github.com/John-Robertt/filmrank/internal/infra/httpx"
	"github.com/John-Robertt/filmrank/internal/rank"
	"github.com/John-Robertt/filmrank/internal/rating"
	"github.com/John-Robertt/filmrank/internal/rating/omdb"
	"github.com/John-Robertt/filmrank/internal/render"
)

// Execute 执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		Path:      eff.Path,
		DryRun:    !eff.Apply,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, 128),
	}

	log := slog.Default()

	omdbClient, err := omdb.New(eff.APIKey, eff.OMDbBaseURL,
		omdb.WithHTTPClient(httpx.NewAPIClient(eff.Timeout)),
		omdb.WithRetryMax(eff.RetryMax),
		omdb.WithRequestDelay(eff.RequestDelay),
		omdb.WithLogger(log),
	)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(configErrorCode(err), err.Error()))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	store := cache.New(eff.Path, !eff.Apply)
	ratings := cachedRatings{inner: omdbClient, store: store, log: log}

	// 发现阶段：翻页失败只损失后续页，已收集条目照常进入流水线。
	discoverStarted := time.Now()
	lister := iplayer.Lister{BaseURL: eff.BaseURL, ListingURL: eff.ListingURL}
	entries := catalog.Discover(ctx, lister, httpx.NewListingClient(eff.Timeout), catalog.Options{
		MaxPages:  eff.MaxPages,
		PageDelay: eff.PageDelay,
		Logger:    log,
	})
	discoverDur := time.Since(discoverStarted)

	if obs != nil {
		obs.OnPhaseDone("discover", map[string]any{
			"movies": len(entries),
		}, discoverDur)
		obs.OnPhaseDone("enrich", map[string]any{
			"workers":      eff.Concurrency,
			"total_movies": len(entries),
		}, 0)
	}

	// 补全阶段：按标题并发查询评分。
	enrichStarted := time.Now()
	var onDone func(idx, total int, e domain.EnrichedEntry, dur time.Duration)
	if obs != nil {
		onDone = obs.OnItemDone
	}
	enriched, err := enrich.Enrich(ctx, entries, ratings, enrich.Options{
		Workers: eff.Concurrency,
		Logger:  log,
		OnDone:  onDone,
	})
	if err != nil {
		// 配置性故障：后续查询必然全败，整个 run 以单条合成失败收尾。
		rr.Items = append(rr.Items, syntheticFailed(configErrorCode(err), err.Error()))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	enrichDur := time.Since(enrichStarted)

	// 排序阶段：纯函数；无评分条目被排除出名次，但仍保留在 report 里。
	rankStarted := time.Now()
	sources := []rank.Source{
		rank.IMDbSource(eff.IMDbWeight),
		rank.RottenTomatoesSource(eff.RTWeight),
	}
	ranked := rank.Rank(sources, enriched)
	rankDur := time.Since(rankStarted)

	if obs != nil {
		obs.OnPhaseDone("enrich_done", map[string]any{
			"movies": len(enriched),
		}, enrichDur)
		obs.OnPhaseDone("rank", map[string]any{
			"ranked":   len(ranked),
			"excluded": len(enriched) - len(ranked),
		}, rankDur)
	}

	rr.Items = append(rr.Items, buildItems(enriched, ranked)...)

	// 渲染阶段：dry-run 也渲染（验证模板与数据），但只有 apply 落盘。
	renderStarted := time.Now()
	var page bytes.Buffer
	if err := render.HTML(&page, ranked, time.Now()); err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("渲染失败：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}
	if eff.Apply {
		if err := fsx.WriteFileAtomicReplace(filepath.Join(eff.Path, "output"), "movies.html", page.Bytes()); err != nil {
			rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeIOFailed, fmt.Sprintf("写入 movies.html 失败：%v", err)))
			rr.FinishedAt = time.Now().UTC()
			rr.Finalize()
			return rr
		}
	}
	renderDur := time.Since(renderStarted)

	if obs != nil {
		obs.OnPhaseDone("render", map[string]any{
			"movies":  len(ranked),
			"written": boolToInt(eff.Apply),
		}, renderDur)
	}

	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// buildItems 把补全/排序结果合并成 report 条目：每部发现的影片恰好一条。
func buildItems(enriched []domain.EnrichedEntry, ranked []domain.RankedEntry) []domain.ItemResult {
	rankedBy := make(map[string]domain.RankedEntry, len(ranked))
	for _, r := range ranked {
		rankedBy[entryKey(r.Entry)] = r
	}

	out := make([]domain.ItemResult, 0, len(enriched))
	for _, e := range enriched {
		item := domain.ItemResult{
			Title:   e.Entry.Title,
			PageURL: e.Entry.PageURL,
			Rating:  e.Rating.Rating,
			Votes:   e.Rating.Votes,
			Genres:  e.Rating.Genres,
			IMDbURL: e.Rating.IMDbURL,
			Year:    e.Rating.Year,
		}

		if r, ok := rankedBy[entryKey(e.Entry)]; ok {
			c := r.Combined
			item.Status = domain.StatusRanked
			item.Combined = &c
			item.Rank = r.Rank
		} else if e.LookupErr != "" {
			item.Status = domain.StatusFailed
			item.ErrorCode = domain.ErrCodeLookupFailed
			item.ErrorMsg = e.LookupErr
		} else {
			item.Status = domain.StatusUnrated
		}
		out = append(out, item)
	}
	return out
}

func entryKey(e domain.CatalogEntry) string {
	return e.PageURL + "\n" + e.Title
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func configErrorCode(err error) string {
	var ce *rating.ConfigError
	if errors.As(err, &ce) && strings.Contains(ce.Reason, "缺少") {
		return domain.ErrCodeMissingAPIKey
	}
	return domain.ErrCodeConfigInvalid
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// cachedRatings 在评分查询前面放一层磁盘缓存：
// - 命中即用，不打网络
// - 仅 apply 运行写回，且只缓存真正带评分的结果（缺失结果下次还会重查）
// - 坏缓存直接忽略，退回网络查询
type cachedRatings struct {
	inner rating.Client
	store cache.Store
	log   *slog.Logger
}

var _ rating.Client = cachedRatings{}

func (c cachedRatings) Name() string { return c.inner.Name() }

func (c cachedRatings) Lookup(ctx context.Context, title string) (domain.RatingRecord, error) {
	if b, ok, err := c.store.ReadRating(c.inner.Name(), title); err == nil && ok {
		var rec domain.RatingRecord
		if e := json.Unmarshal(b, &rec); e == nil {
			return rec, nil
		}
		c.log.Warn("评分缓存损坏，改走网络", "source", c.inner.Name(), "title", title)
	}

	rec, err := c.inner.Lookup(ctx, title)
	if err != nil {
		return rec, err
	}

	if !c.store.ReadOnly && rec.HasRating() {
		if b, e := json.Marshal(rec); e == nil {
			if werr := c.store.WriteRating(c.inner.Name(), title, b); werr != nil {
				c.log.Warn("写评分缓存失败", "source", c.inner.Name(), "title", title, "err", werr)
			}
		}
	}
	return rec, nil
}
