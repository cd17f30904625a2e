package omdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/John-Robertt/filmrank/internal/domain"
	"github.com/John-Robertt/filmrank/internal/infra/httpx"
	"github.com/John-Robertt/filmrank/internal/rating"
)

const (
	// DefaultBaseURL 是 OMDb API 的默认入口。
	DefaultBaseURL = "https://www.omdbapi.com"

	defaultRetryMax     = 3
	defaultBackoffBase  = 500 * time.Millisecond
	defaultRequestDelay = 500 * time.Millisecond
)

// Client 实现 OMDb 的按标题查询。
//
// 约束：
// - 按标题精确匹配：命名差异会静默解析为 not-found（已知弱点，不在本层修复）
// - 5xx/连接级失败：指数退避重试（0.5s、1s、2s），预算耗尽降级为全缺失
// - 401：配置性故障（*rating.ConfigError），不重试、必须上抛
// - 限速：每次出站请求前强制最小间隔；连续故障会触发熔断，熔断期内直接降级
type Client struct {
	apiKey  string
	baseURL string

	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]

	retryMax    int
	backoffBase time.Duration
	logger      *slog.Logger
}

var _ rating.Client = (*Client)(nil)

// Option 配置 Client。
type Option func(*Client)

// WithHTTPClient 覆盖默认 HTTP client（默认 httpx.NewAPIClient(10s)）。
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithRetryMax 设置最大重试次数（不含首次尝试；负值按 0 处理）。
func WithRetryMax(n int) Option {
	return func(cl *Client) {
		if n < 0 {
			n = 0
		}
		cl.retryMax = n
	}
}

// WithRequestDelay 设置两次出站请求间的最小间隔（<=0 表示不限速）。
func WithRequestDelay(d time.Duration) Option {
	return func(cl *Client) {
		if d <= 0 {
			cl.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		cl.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithBackoffBase 覆盖退避基准（仅测试用途；默认 0.5s）。
func WithBackoffBase(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.backoffBase = d
		}
	}
}

// WithLogger 覆盖默认 logger。
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New 构造 OMDb client。apiKey 为空属于配置性故障，直接报错（启动期失败）。
func New(apiKey, baseURL string, opts ...Option) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, &rating.ConfigError{Source: "omdb", Reason: "缺少 API key"}
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	c := &Client{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		http:        httpx.NewAPIClient(10 * time.Second),
		limiter:     rate.NewLimiter(rate.Every(defaultRequestDelay), 1),
		retryMax:    defaultRetryMax,
		backoffBase: defaultBackoffBase,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	// 熔断只针对传输层：连续故障说明服务整体不可用，继续重试只是浪费预算。
	// 熔断打开期间查询直接降级为全缺失（与重试耗尽同等对待），不会升级为致命错误。
	c.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "omdb",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return c, nil
}

func (c *Client) Name() string { return "omdb" }

// envelope 对应 OMDb 的 JSON 响应（只取需要的字段；全部保持字符串原样，解析交给纯函数）。
type envelope struct {
	Response string `json:"Response"`
	Error    string `json:"Error"`

	IMDbRating string `json:"imdbRating"`
	IMDbVotes  string `json:"imdbVotes"`
	Genre      string `json:"Genre"`
	IMDbID     string `json:"imdbID"`
	Year       string `json:"Year"`
}

// Lookup 查询一个标题的评分元数据。
//
// 未命中与“重试耗尽/熔断”都返回全缺失 record + nil error；
// 只有配置性故障与真正非预期的错误才会以 error 形式返回。
func (c *Client) Lookup(ctx context.Context, title string) (domain.RatingRecord, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.RatingRecord{}, fmt.Errorf("title 不能为空")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return domain.RatingRecord{}, err
	}

	body, err := c.breaker.Execute(func() ([]byte, error) {
		return c.fetchWithRetry(ctx, title)
	})
	if err != nil {
		if rating.IsConfigError(err) {
			return domain.RatingRecord{}, err
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("omdb 熔断中，评分降级为缺失", "title", title)
			return domain.RatingRecord{}, nil
		}
		var te *transientError
		if errors.As(err, &te) {
			c.logger.Warn("omdb 重试耗尽，评分降级为缺失", "title", title, "err", te.Err)
			return domain.RatingRecord{}, nil
		}
		return domain.RatingRecord{}, err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		// 响应不是合法 JSON：当作非预期错误，让上层隔离记录。
		return domain.RatingRecord{}, fmt.Errorf("omdb 响应解析失败：%w", err)
	}
	if !strings.EqualFold(env.Response, "True") {
		// 标题未命中：缺失是状态，不是错误。
		return domain.RatingRecord{}, nil
	}

	return domain.RatingRecord{
		Rating:  ParseRating(env.IMDbRating),
		Votes:   ParseVotes(env.IMDbVotes),
		Genres:  SplitGenres(env.Genre),
		IMDbURL: TitleURL(env.IMDbID),
		Year:    cleanField(env.Year),
	}, nil
}

// transientError 标记“重试预算已耗尽”的传输层失败，供 Lookup 降级识别。
type transientError struct {
	Err error
}

func (e *transientError) Error() string { return fmt.Sprintf("瞬时故障（重试已耗尽）：%v", e.Err) }
func (e *transientError) Unwrap() error { return e.Err }

func (c *Client) fetchWithRetry(ctx context.Context, title string) ([]byte, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		b, err := c.fetchOnce(ctx, title)
		if err == nil {
			return b, nil
		}
		if rating.IsConfigError(err) {
			return nil, err
		}

		var se *httpx.StatusError
		if errors.As(err, &se) && se.StatusCode < 500 {
			// 4xx（401 之外）：不重试，按非预期错误上抛。
			return nil, err
		}
		// 5xx / 连接级失败 / 超时：可重试。
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt >= c.retryMax {
			return nil, &transientError{Err: lastErr}
		}

		// 指数退避：base、2*base、4*base……
		d := c.backoffBase << uint(attempt)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, title string) ([]byte, error) {
	q := url.Values{}
	q.Set("apikey", c.apiKey)
	q.Set("t", title)
	q.Set("type", "movie")
	q.Set("r", "json")
	u := c.baseURL + "/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, &rating.ConfigError{Source: "omdb", Reason: "API key 无效或未激活"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpx.StatusError{URL: c.baseURL, StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// —— 以下为逐字段的防御式解析（纯函数，单测覆盖）。——
// 策略：解析失败/零值一律收窄为“缺失”，绝不作为错误上抛。

// ParseRating 解析 0–10 评分字符串；"N/A"、空串、零值、非法输入都返回 nil。
func ParseRating(s string) *float64 {
	s = cleanField(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || v > 10 {
		return nil
	}
	return &v
}

// ParseVotes 解析票数字符串（可能带千位逗号分组）；零值/非法输入返回 nil。
func ParseVotes(s string) *int {
	s = strings.ReplaceAll(cleanField(s), ",", "")
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}

// SplitGenres 解析逗号分隔的题材串；空串/"N/A" 返回空集。
func SplitGenres(s string) []string {
	s = cleanField(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// TitleURL 把 imdbID 还原为详情页 URL；缺失/"N/A" 返回空串。
func TitleURL(imdbID string) string {
	imdbID = cleanField(imdbID)
	if imdbID == "" {
		return ""
	}
	return "https://www.imdb.com/title/" + imdbID
}

func cleanField(s string) string {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "N/A") {
		return ""
	}
	return s
}
