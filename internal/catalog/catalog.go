package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/John-Robertt/filmrank/internal/domain"
)

const (
	// DefaultMaxPages 是分页的安全上限：列表站不承诺给出总页数，
	// 当它行为异常（分页块存在但无页码）时靠该上限兜底，绝不允许无界循环。
	DefaultMaxPages = 50

	// DefaultPageDelay 是相邻两次翻页抓取之间的礼貌间隔。
	DefaultPageDelay = time.Second
)

// Page 是一张列表页的解析结果。
type Page struct {
	Entries []domain.CatalogEntry

	// Skipped 是本页因缺标题/结构异常而丢弃的条目数（调用方负责记日志）。
	Skipped int

	// HasPagination 表示页面上存在分页块；PageNumbers 是块内可解析出的页码。
	// 分页块存在但页码为空 => “还有多少页未知”，循环依赖零条目条件终止。
	HasPagination bool
	PageNumbers   []int
}

// Lister 把“列表站变化”限制在各实现包内部；发现循环只依赖统一接口。
//
// 约束：
// - Fetch 不做缓存、不做限速（这些由发现循环与 http 层统一实现）
// - Parse 必须是纯函数：相同输入 => 相同输出
type Lister interface {
	Name() string
	Fetch(ctx context.Context, page int, c *http.Client) (html []byte, pageURL string, err error)
	Parse(html []byte, pageURL string) (Page, error)
}

// Options 控制发现循环的行为；零值字段取默认。
type Options struct {
	MaxPages  int
	PageDelay time.Duration
	Logger    *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.PageDelay < 0 {
		o.PageDelay = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Discover 逐页走完列表源，返回发现的全部条目。
//
// 终止条件（任一满足即停）：
// - 首次观察到页码集合时记下最大值 totalPages；当前页到达 totalPages
// - 某页解析出零条目
// - 页面没有分页块（视为“单页，到此为止”）
// - 达到 MaxPages 安全上限
//
// 任何一页的传输/解析失败：停止翻页，返回已积累的部分结果（warn 日志，不是错误）——
// 调用方无法区分“翻到头了”与“网络断了”，后者不允许按致命处理。
func Discover(ctx context.Context, l Lister, c *http.Client, opts Options) []domain.CatalogEntry {
	opts = opts.withDefaults()
	log := opts.Logger

	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.PageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.PageDelay), 1)
	}

	var (
		entries    []domain.CatalogEntry
		totalPages int
	)

	for page := 1; ; page++ {
		if page > opts.MaxPages {
			log.Warn("分页达到安全上限，提前停止", "source", l.Name(), "max_pages", opts.MaxPages)
			break
		}
		if err := limiter.Wait(ctx); err != nil {
			log.Warn("发现停止（ctx 取消）", "source", l.Name(), "page", page, "err", err)
			break
		}

		html, pageURL, err := l.Fetch(ctx, page, c)
		if err != nil {
			log.Warn("列表页抓取失败，返回部分结果", "source", l.Name(), "page", page, "err", err)
			break
		}
		pg, err := l.Parse(html, pageURL)
		if err != nil {
			log.Warn("列表页解析失败，返回部分结果", "source", l.Name(), "page", page, "err", err)
			break
		}

		// 兜底：无标题条目不允许流出发现阶段（Parse 实现应已过滤，这里守住不变式）。
		kept := pg.Entries[:0]
		for _, e := range pg.Entries {
			if !e.Valid() {
				pg.Skipped++
				continue
			}
			kept = append(kept, e)
		}
		pg.Entries = kept

		if pg.Skipped > 0 {
			log.Warn("本页有条目被丢弃（缺标题/结构异常）", "source", l.Name(), "page", page, "skipped", pg.Skipped)
		}
		if len(pg.Entries) == 0 {
			break
		}
		entries = append(entries, pg.Entries...)

		if !pg.HasPagination {
			// 没有分页块：单页列表。
			break
		}
		if totalPages == 0 && len(pg.PageNumbers) > 0 {
			totalPages = maxInt(pg.PageNumbers)
			log.Info("观察到总页数", "source", l.Name(), "total_pages", totalPages)
		}
		if totalPages > 0 && page >= totalPages {
			break
		}
	}

	return entries
}

func maxInt(xs []int) int {
	m := 0
	for _, x := range xs {
		if x > m {
			m = x
		}
	}
	return m
}
