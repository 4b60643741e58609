package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort            = 8080      // 监听端口
	DefaultHost            = "0.0.0.0" // 监听地址
	DefaultDebug           = false     // 是否启用调试模式
	DefaultTimeout         = 300       // 单个请求的读写超时，单位秒（批量上传可能较大）
	DefaultShutdownTimeout = 15        // 优雅关闭等待时间，单位秒
)

type (
	// ServerConfig 服务器配置.
	ServerConfig struct {
		Port            int      `mapstructure:"port"             rule:"min=1,max=65535"`
		Host            string   `mapstructure:"host"             rule:"ip"`
		Debug           bool     `mapstructure:"debug"`
		Timeout         int      `mapstructure:"timeout"          rule:"min=1,max=3600"`
		ShutdownTimeout int      `mapstructure:"shutdown_timeout" rule:"min=1,max=300"`
		Gzip            bool     `mapstructure:"gzip"`
		CORSOrigins     []string `mapstructure:"cors_origins"`
		// TrustedProxies 允许提供 X-Forwarded-For 的代理地址（IP 或 CIDR），为空时只使用连接对端地址
		TrustedProxies  []string `mapstructure:"trusted_proxies"  rule:"omitempty,dive,ip|cidr"`
	}
)

// GetTimeoutDuration 返回超时时间作为time.Duration.
func (s *ServerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetShutdownTimeout 返回优雅关闭等待时间.
func (s *ServerConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeout) * time.Second
}

// setDefaults 设置服务器配置的默认值.
func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.debug", DefaultDebug)
	v.SetDefault("server.timeout", DefaultTimeout)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.gzip", true)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.trusted_proxies", []string{})
}
