package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultWebhookSecretHeader = "X-Webhook-Secret" // 共享密钥请求头
	DefaultWebhookClientID     = "folderrelay"      // 客户端标识
	DefaultWebhookTimeoutMs    = 30000              // 单次请求超时，毫秒
	DefaultWebhookMaxRetries   = 2                  // 失败后的最大重试次数
)

// WebhookConfig 下游 webhook 配置.
type WebhookConfig struct {
	URL          string          `mapstructure:"url"            rule:"omitempty,url"`
	Secret       string          `mapstructure:"secret"`
	SecretHeader string          `mapstructure:"secret_header"  rule:"required"`
	ClientID     string          `mapstructure:"client_id"`
	TimeoutMs    int             `mapstructure:"timeout_ms"     rule:"min=1"`
	MaxRetries   int             `mapstructure:"max_retries"    rule:"min=0,max=10"`
	Backoff      []time.Duration `mapstructure:"backoff"`                           // 按尝试序号索引的退避表，超出时使用最后一项
	Jitter       float64         `mapstructure:"jitter"         rule:"min=0,max=1"` // 向上抖动比例
	MaxBodyBytes int64           `mapstructure:"max_body_bytes" rule:"min=0"`       // 保留下游响应体的最大字节数
}

// Missing 返回缺失的必需配置项名称，空切片表示配置完整；不会包含任何密钥值.
func (w *WebhookConfig) Missing() []string {
	var missing []string

	if w.URL == "" {
		missing = append(missing, "webhook.url")
	}

	if w.Secret == "" {
		missing = append(missing, "webhook.secret")
	}

	return missing
}

// GetTimeout 返回单次请求超时.
func (w *WebhookConfig) GetTimeout() time.Duration {
	return time.Duration(w.TimeoutMs) * time.Millisecond
}

// setDefaults 设置 webhook 配置的默认值.
func (w *WebhookConfig) setDefaults(v *viper.Viper) {
	const defaultMaxBodyBytes = 64 * 1024

	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.secret_header", DefaultWebhookSecretHeader)
	v.SetDefault("webhook.client_id", DefaultWebhookClientID)
	v.SetDefault("webhook.timeout_ms", DefaultWebhookTimeoutMs)
	v.SetDefault("webhook.max_retries", DefaultWebhookMaxRetries)
	v.SetDefault("webhook.backoff", []string{"500ms", "1500ms"})
	v.SetDefault("webhook.jitter", 0.0)
	v.SetDefault("webhook.max_body_bytes", defaultMaxBodyBytes)
}
