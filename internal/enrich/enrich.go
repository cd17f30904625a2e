package enrich

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/John-Robertt/filmrank/internal/domain"
	"github.com/John-Robertt/filmrank/internal/rating"
)

// DefaultWorkers 是并发查询的默认上限（尊重外部服务，也避免无界资源占用）。
const DefaultWorkers = 10

// Options 控制补全阶段的行为；零值字段取默认。
type Options struct {
	Workers int
	Logger  *slog.Logger

	// OnDone 在每个条目完成时回调（进度呈现用；可为 nil）。
	// 回调可能来自收集 goroutine，但实现上保证串行调用。
	OnDone func(idx, total int, e domain.EnrichedEntry, dur time.Duration)
}

func (o Options) withDefaults() Options {
	if o.Workers < 1 {
		o.Workers = DefaultWorkers
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Enrich 把目录条目扇出到有界 worker 池做并发评分查询，按完成顺序收集。
//
// 保证：
// - 每个输入条目恰好产出一个 EnrichedEntry（查询失败只置空评分，绝不丢条目）
// - 输出顺序不承诺与输入一致；每个结果自带其来源条目
// - 单元的非预期错误被隔离：记日志、条目保留、评分全缺失
// - 任一单元返回配置性故障：取消剩余工作并把该错误上抛（后续查询必然全败，吞掉没有意义）
func Enrich(ctx context.Context, entries []domain.CatalogEntry, client rating.Client, opts Options) ([]domain.EnrichedEntry, error) {
	opts = opts.withDefaults()
	log := opts.Logger

	if len(entries) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		entry domain.CatalogEntry
		rec   domain.RatingRecord
		err   error
		dur   time.Duration
	}

	jobs := make(chan domain.CatalogEntry)
	results := make(chan result, len(entries))

	var wg sync.WaitGroup
	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for e := range jobs {
				started := time.Now()
				rec, err := client.Lookup(ctx, e.Title)
				results <- result{entry: e, rec: rec, err: err, dur: time.Since(started)}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for _, e := range entries {
			select {
			case jobs <- e:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		out      = make([]domain.EnrichedEntry, 0, len(entries))
		fatalErr error
		done     int
	)
	for r := range results {
		done++

		if r.err != nil {
			if rating.IsConfigError(r.err) {
				if fatalErr == nil {
					fatalErr = r.err
					cancel() // 喂料停止；在途单元自然收尾
				}
				continue
			}
			if fatalErr != nil && errors.Is(r.err, context.Canceled) {
				// 取消引发的连带失败：不是该条目自己的问题，不记录。
				continue
			}
			log.Error("评分查询出现非预期错误，条目保留、评分置空",
				"title", r.entry.Title, "err", r.err)
			r.rec = domain.RatingRecord{}
		}

		e := domain.EnrichedEntry{Entry: r.entry, Rating: r.rec}
		if r.err != nil {
			e.LookupErr = r.err.Error()
		}
		out = append(out, e)

		if opts.OnDone != nil {
			opts.OnDone(done, len(entries), e, r.dur)
		}
	}

	if fatalErr != nil {
		return nil, fatalErr
	}
	return out, nil
}
