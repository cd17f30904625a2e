package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/filmrank/internal/app/run"
	"github.com/John-Robertt/filmrank/internal/config"
	"github.com/John-Robertt/filmrank/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	rated   int
	absent  int
	fail    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	mode := "dry-run"
	modeHint := " (不写页面/不写缓存)"
	if eff.Apply {
		mode = "apply"
		modeHint = ""
	}

	fmt.Fprintf(p.w, "[%s] filmrank run (%s)\n", now.Format("15:04:05"), mode)
	fmt.Fprintln(p.w, "配置（生效）:")
	fmt.Fprintf(p.w, "  path: %s\n", eff.Path)
	fmt.Fprintf(p.w, "  mode: %s%s\n", mode, modeHint)
	if strings.TrimSpace(eff.ListingURL) != "" {
		fmt.Fprintf(p.w, "  listing_url: %s\n", truncate(eff.ListingURL, 120))
	}
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  max_pages: %d\n", eff.MaxPages)
	fmt.Fprintf(p.w, "  weights: imdb=%.2f rt=%.2f\n", eff.IMDbWeight, eff.RTWeight)

	fmt.Fprintln(p.w, "输出:")
	if eff.Apply {
		fmt.Fprintf(p.w, "  page: %s\n", eff.Path+"/output/movies.html")
		fmt.Fprintf(p.w, "  report: %s\n", eff.Path+"/cache/report.json")
	}
	fmt.Fprintf(p.w, "  cache: %s\n", eff.Path+"/cache")
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "discover":
		fmt.Fprintf(p.w, "发现: movies=%d (%s)\n",
			intField(fields, "movies"), formatShortDuration(dur),
		)
	case "enrich":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total_movies")
		fmt.Fprintf(p.w, "查询: workers=%d total_movies=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	case "enrich_done":
		fmt.Fprintf(p.w, "\n查询完成: movies=%d (%s)\n",
			intField(fields, "movies"), formatShortDuration(dur),
		)
	case "rank":
		fmt.Fprintf(p.w, "排名: ranked=%d excluded=%d (%s)\n",
			intField(fields, "ranked"), intField(fields, "excluded"), formatShortDuration(dur),
		)
	case "render":
		written := "dry-run，未写出"
		if intField(fields, "written") == 1 {
			written = "已写出"
		}
		fmt.Fprintf(p.w, "渲染: movies=%d（%s）(%s)\n",
			intField(fields, "movies"), written, formatShortDuration(dur),
		)
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, e domain.EnrichedEntry, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	status := "ABSENT"
	switch {
	case e.LookupErr != "":
		status = "FAIL"
		p.fail++
	case e.Rating.HasRating():
		status = "RATED"
		p.rated++
	default:
		p.absent++
	}

	switch status {
	case "FAIL":
		fmt.Fprintf(p.w, "[%d/%d] %s %s: %s (%s)\n",
			idx, total, truncate(e.Entry.Title, 60), status, truncate(e.LookupErr, 160), formatShortDuration(dur),
		)
	case "RATED":
		detail := ""
		if e.Rating.Rating != nil {
			detail = fmt.Sprintf(" imdb=%.1f", *e.Rating.Rating)
		}
		fmt.Fprintf(p.w, "[%d/%d] %s %s%s (%s)\n",
			idx, total, truncate(e.Entry.Title, 60), status, detail, formatShortDuration(dur),
		)
	default:
		fmt.Fprintf(p.w, "[%d/%d] %s %s (%s)\n",
			idx, total, truncate(e.Entry.Title, 60), status, formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, rated, absent, failed, active int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "进度: done=%d/%d rated=%d absent=%d fail=%d active=%d elapsed=%s\n",
		done, total, rated, absent, failed, active, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已完成：安全退出（OnItemDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}

				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := p.workers
					remain := p.total - p.done
					if remain < active {
						active = remain
					}
					elapsed := time.Since(p.startedAt)
					fmt.Fprintf(p.w, "进度: done=%d/%d rated=%d absent=%d fail=%d active=%d elapsed=%s\n",
						p.done, p.total, p.rated, p.absent, p.fail, active, formatElapsed(elapsed),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-p.stopCh:
				return
			}
		}
	}()
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	case uint:
		return int(x)
	case uint32:
		return int(x)
	case uint64:
		return int(x)
	default:
		return 0
	}
}
