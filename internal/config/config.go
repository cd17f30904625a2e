package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/joho/godotenv"
)

const (
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
	// ErrCodeMissingKey 表示配置文件与环境变量都未提供评分服务 API key。
	// 这是启动期致命的配置性故障：没有 key，所有查询都会失败。
	ErrCodeMissingKey = "missing_api_key"
)

const (
	// EnvAPIKey 是 API key 的环境变量名（配置文件优先，环境变量兜底）。
	EnvAPIKey = "OMDB_API_KEY"

	DefaultConcurrency  = 10
	DefaultRetryMax     = 3
	DefaultMaxPages     = 50
	DefaultPageDelay    = time.Second
	DefaultRequestDelay = 500 * time.Millisecond
	DefaultTimeout      = 10 * time.Second
)

// CLIArgs 只包含 CLI 暴露的入口（path/apply），并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --apply=false 必须能覆盖 config.apply=true。
type CLIArgs struct {
	Path string

	Apply    bool
	ApplySet bool
}

// FileConfig 对应 filmrank.json 的解析结构。
type FileConfig struct {
	Apply *bool `json:"apply"`

	ListingURL  string `json:"listing_url"`
	BaseURL     string `json:"base_url"`
	OMDbBaseURL string `json:"omdb_base_url"`
	APIKey      string `json:"api_key"`

	Concurrency    int  `json:"concurrency"`
	RetryMax       *int `json:"retry_max"` // 指针：0 是合法取值（不重试），与“未指定”区分
	MaxPages       int  `json:"max_pages"`
	PageDelayMS    int  `json:"page_delay_ms"`
	RequestDelayMS int  `json:"request_delay_ms"`
	TimeoutMS      int  `json:"timeout_ms"`

	Weights *WeightsConfig `json:"weights"`
}

type WeightsConfig struct {
	IMDb float64 `json:"imdb"`
	RT   float64 `json:"rt"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置
//（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	Path  string // 运行根目录（output/、cache/ 都在其下）
	Apply bool

	ListingURL  string
	BaseURL     string
	OMDbBaseURL string
	APIKey      string

	Concurrency  int
	RetryMax     int
	MaxPages     int
	PageDelay    time.Duration
	RequestDelay time.Duration
	Timeout      time.Duration

	IMDbWeight float64
	RTWeight   float64
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeMissingKey:
		return fmt.Sprintf("%s：未提供 OMDb API key（配置文件 api_key 或环境变量 %s）", e.Code, EnvAPIKey)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 path：尝试读取 <path>/filmrank.json（可选）
// 2) CLI 未提供 path：path 取 cwd，尝试读取 <cwd>/filmrank.json（同样可选）
//
// 凭证解析顺序（固定）：
// - 先 best-effort 加载 <path>/.env（存在才加载，解析失败按配置无效处理）
// - api_key：config > 环境变量 OMDB_API_KEY；两处都没有 => missing_api_key（启动期致命）
//
// 覆盖优先级（固定）：
// - apply：CLI --apply/--apply=false > config > 默认 false
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	path := cwdAbs
	if strings.TrimSpace(cli.Path) != "" {
		path = absCleanFrom(cwdAbs, cli.Path)
	}

	cfgPath := filepath.Join(path, "filmrank.json")
	fc, _, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	// .env：存在才加载；内容写入进程环境（与环境变量同一优先级通道）。
	envPath := filepath.Join(path, ".env")
	if _, statErr := os.Stat(envPath); statErr == nil {
		if err := godotenv.Load(envPath); err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: envPath, Err: err}
		}
	}

	return merge(path, cli, fc, cfgPath)
}

func merge(absPath string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	// apply：CLI > config > 默认 false
	apply := false
	if cli.ApplySet {
		apply = cli.Apply
	} else if fc.Apply != nil {
		apply = *fc.Apply
	}

	apiKey := strings.TrimSpace(fc.APIKey)
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv(EnvAPIKey))
	}
	if apiKey == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingKey, Path: cfgPath}
	}

	for _, u := range []struct {
		name, raw string
	}{
		{"listing_url", fc.ListingURL},
		{"base_url", fc.BaseURL},
		{"omdb_base_url", fc.OMDbBaseURL},
	} {
		if strings.TrimSpace(u.raw) == "" {
			continue
		}
		parsed, err := url.Parse(strings.TrimSpace(u.raw))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("%s 无效：%q", u.name, u.raw)}
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf("%s 必须是 http/https：%q", u.name, u.raw)}
		}
	}

	concurrency := fc.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 文档约定：范围建议 [1, 32]；超出截断。
	concurrency = clamp(concurrency, 1, 32)

	retryMax := DefaultRetryMax
	if fc.RetryMax != nil {
		retryMax = clamp(*fc.RetryMax, 0, 10)
	}

	maxPages := fc.MaxPages
	if maxPages == 0 {
		maxPages = DefaultMaxPages
	}
	maxPages = clamp(maxPages, 1, 500)

	pageDelay := DefaultPageDelay
	if fc.PageDelayMS > 0 {
		pageDelay = time.Duration(fc.PageDelayMS) * time.Millisecond
	}
	requestDelay := DefaultRequestDelay
	if fc.RequestDelayMS > 0 {
		requestDelay = time.Duration(fc.RequestDelayMS) * time.Millisecond
	}
	timeout := DefaultTimeout
	if fc.TimeoutMS > 0 {
		timeout = time.Duration(fc.TimeoutMS) * time.Millisecond
	}

	imdbW, rtW := 0.5, 0.5
	if fc.Weights != nil {
		imdbW, rtW = fc.Weights.IMDb, fc.Weights.RT
		if imdbW < 0 || rtW < 0 || math.Abs(imdbW+rtW-1) > 1e-6 {
			return EffectiveConfig{}, &Error{
				Code: ErrCodeInvalid, Path: cfgPath,
				Err: fmt.Errorf("weights 必须非负且 imdb+rt=1，实际 imdb=%v rt=%v", imdbW, rtW),
			}
		}
	}

	return EffectiveConfig{
		Path:         absPath,
		Apply:        apply,
		ListingURL:   strings.TrimSpace(fc.ListingURL),
		BaseURL:      strings.TrimSpace(fc.BaseURL),
		OMDbBaseURL:  strings.TrimSpace(fc.OMDbBaseURL),
		APIKey:       apiKey,
		Concurrency:  concurrency,
		RetryMax:     retryMax,
		MaxPages:     maxPages,
		PageDelay:    pageDelay,
		RequestDelay: requestDelay,
		Timeout:      timeout,
		IMDbWeight:   imdbW,
		RTWeight:     rtW,
	}, nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误：所有字段都有默认值）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
