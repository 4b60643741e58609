package configs

import "github.com/spf13/viper"

// EventsConfig 控制中继事件发布的开关（全局与分主题）。
type EventsConfig struct {
	Enabled   bool `mapstructure:"enabled"`   // 总开关
	Forwarded bool `mapstructure:"forwarded"` // 批次被下游接受
	Failed    bool `mapstructure:"failed"`    // 批次转发失败
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	// 总开关：默认关闭，需要审计时开启
	v.SetDefault("events.enabled", false)
	v.SetDefault("events.forwarded", true)
	v.SetDefault("events.failed", true)
}
