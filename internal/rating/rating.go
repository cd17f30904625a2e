package rating

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/filmrank/internal/domain"
)

// Client 把“评分服务变化”限制在各实现包内部；核心流程只依赖统一接口与稳定的 RatingRecord。
//
// 约束：
// - 标题未命中、瞬时故障重试耗尽：返回全缺失 record + nil error（缺失是状态，不是错误）
// - 凭证无效等配置性故障：返回 *ConfigError（必须逐层上抛，不允许按条目吞掉）
// - 其余非 nil error 属于“非预期”：由上层隔离记录，条目保留、评分置空
type Client interface {
	Name() string
	Lookup(ctx context.Context, title string) (domain.RatingRecord, error)
}

// ConfigError 表示配置性故障（例如 API key 无效/未激活）。
//
// 它与“未命中”有本质区别：未命中只影响单个标题，配置故障意味着后续所有
// 查询都会失败，必须让整条流水线尽快终止。
type ConfigError struct {
	Source string // 评分服务名（小写）
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "配置性故障"
	}
	r := strings.TrimSpace(e.Reason)
	if r == "" {
		r = "配置性故障"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s：%s：%v", e.Source, r, e.Err)
	}
	return fmt.Sprintf("%s：%s", e.Source, r)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError 判断 err 链上是否有配置性故障。
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
