package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	// 默认速率限制配置.
	DefaultRateLimitEnabled     = true
	DefaultRateLimitMaxRequests = 10
	DefaultRateLimitWindow      = time.Minute
	DefaultRateLimitSweep       = 10 * time.Minute
	DefaultRateLimitKey         = "ip"
	DefaultRateLimitStore       = "memory"
)

// RateLimitConfig 速率限制配置.
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"   rule:"min=1"`
	Window      time.Duration `mapstructure:"window"         rule:"min=1ms"`
	// Key 选择限流维度：global（全局）、ip（按客户端IP）、header:Header-Name（按请求头）
	Key           string        `mapstructure:"key"`
	Store         string        `mapstructure:"store"          rule:"oneof=memory kv"` // memory 进程内；kv 使用 kv 配置的后端
	SweepInterval time.Duration `mapstructure:"sweep_interval" rule:"min=1s"`
	// 进程级令牌桶，在固定窗口之前拦截突发流量；GlobalRPS 为 0 表示关闭
	GlobalRPS   float64 `mapstructure:"global_rps"     rule:"min=0"`
	GlobalBurst int     `mapstructure:"global_burst"   rule:"min=0"`
}

// setDefaults 设置限流配置的默认值.
func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", DefaultRateLimitEnabled)
	v.SetDefault("rate_limit.max_requests", DefaultRateLimitMaxRequests)
	v.SetDefault("rate_limit.window", DefaultRateLimitWindow)
	v.SetDefault("rate_limit.key", DefaultRateLimitKey)
	v.SetDefault("rate_limit.store", DefaultRateLimitStore)
	v.SetDefault("rate_limit.sweep_interval", DefaultRateLimitSweep)
	v.SetDefault("rate_limit.global_rps", 0.0)
	v.SetDefault("rate_limit.global_burst", 0)
}
