package configs

import "github.com/spf13/viper"

// AuthConfig 可选的静态凭据认证：Bearer token 或 Basic 用户名密码，二者任一匹配即通过.
type AuthConfig struct {
	Enabled   bool     `mapstructure:"enabled"`    // 开启认证校验
	Token     string   `mapstructure:"token"`      // Authorization: Bearer <token>
	Username  string   `mapstructure:"username"`   // Basic 认证用户名
	Password  string   `mapstructure:"password"`   // Basic 认证密码
	SkipPaths []string `mapstructure:"skip_paths"` // 跳过认证的路径前缀（如 /metrics、/healthz）
}

// HasCredentials 报告是否至少配置了一种凭据.
func (c *AuthConfig) HasCredentials() bool {
	return c.Token != "" || (c.Username != "" && c.Password != "")
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.username", "")
	v.SetDefault("auth.password", "")
	v.SetDefault("auth.skip_paths", []string{
		"/metrics",
		"/debug/pprof",
		"/healthz",
	})
}
