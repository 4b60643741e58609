// Package configs 管理应用程序配置，包括服务器、Webhook、上传限制和限流等配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）以及 FOLDERRELAY_ 前缀的环境变量.
//
// 配置在进程启动时加载一次，之后视为只读，通过参数传递给各个组件.
//
// Example:
//
//	cfg, err := configs.Load("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Println(cfg.Server.Port)
//
// Example accessing Webhook config:
//
//	if missing := cfg.Webhook.Missing(); len(missing) > 0 {
//		fmt.Println("webhook not configured:", missing)
//	}
//
// Example accessing RateLimit config:
//
//	window := cfg.RateLimit.Window
//	fmt.Println("Window:", window)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/yeisme/folderrelay/pkg/rule"
)

const (
	AppName    = "folderrelay"
	AppVersion = "0.1.0"
	EnvPrefix  = "FOLDERRELAY"
)

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		Server         ServerConfig         `mapstructure:"server"`          // ServerConfig 服务器监听、调试、CORS 等配置
		Log            LogConfig            `mapstructure:"log"`             // LogConfig 日志相关配置
		Webhook        WebhookConfig        `mapstructure:"webhook"`         // WebhookConfig 下游 webhook 配置
		Upload         UploadConfig         `mapstructure:"upload"`          // UploadConfig 上传限制
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`      // RateLimitConfig 限流配置
		KV             KVConfig             `mapstructure:"kv"`              // KVConfig 键值存储配置
		Auth           AuthConfig           `mapstructure:"auth"`            // AuthConfig 静态凭据认证
		Metrics        MetricsConfig        `mapstructure:"metrics"`         // MetricsConfig 监控配置
		Tracing        TracingConfig        `mapstructure:"tracing"`         // TracingConfig 追踪配置
		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"` // CircuitBreakerConfig 下游熔断配置
		MQ             MQConfig             `mapstructure:"mq"`              // MQConfig 事件传输配置
		Events         EventsConfig         `mapstructure:"events"`          // EventsConfig 中继事件开关
	}
)

var (
	// globalConfig 全局配置实例，仅供 CLI 子命令打印使用.
	globalConfig *AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
)

// Load 读取配置文件与环境变量，校验后返回不可变的配置实例.
// path 可以是文件、目录或空字符串（仅使用默认值和环境变量）.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setAllDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, path); err != nil {
		return nil, err
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := rule.ValidateStruct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	appViper = v
	globalConfig = &cfg

	return &cfg, nil
}

// readConfigFile 根据 path 定位配置文件；找不到配置文件时仅使用默认值与环境变量.
func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	// 检查path是否是文件
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		// 是文件，使用SetConfigFile，Viper会自动检测类型
		v.SetConfigFile(path)
	} else {
		// 是目录，设置配置名和路径
		v.SetConfigName("config")
		v.AddConfigPath(path)
		v.AddConfigPath(filepath.Join(path, "configs"))

		for _, ext := range []string{"yaml", "yml", "json", "toml", "env", "dotenv"} {
			cfg := filepath.Join(path, "config."+ext)
			if _, err := os.Stat(cfg); err == nil {
				v.SetConfigFile(cfg)

				break
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("failed to read config: %w", err)
	}

	return nil
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var (
		serverConfig  ServerConfig
		logConfig     LogConfig
		webhookConfig WebhookConfig
		uploadConfig  UploadConfig
		rateLimit     RateLimitConfig
		kvConfig      KVConfig
		authConfig    AuthConfig
		metricsConfig MetricsConfig
		tracingConfig TracingConfig
		breakerConfig CircuitBreakerConfig
		mqConfig      MQConfig
		eventsConfig  EventsConfig
	)

	serverConfig.setDefaults(v)
	logConfig.setDefaults(v)
	webhookConfig.setDefaults(v)
	uploadConfig.setDefaults(v)
	rateLimit.setDefaults(v)
	kvConfig.setDefaults(v)
	authConfig.setDefaults(v)
	metricsConfig.setDefaults(v)
	tracingConfig.setDefaults(v)
	breakerConfig.setDefaults(v)
	mqConfig.setDefaults(v)
	eventsConfig.setDefaults(v)
}

// Default 返回只包含默认值的配置，主要用于测试；默认值无法解码时 panic.
func Default() *AppConfig {
	v := viper.New()
	setAllDefaults(v)

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("configs: decode defaults: %v", err))
	}

	return &cfg
}

// GetConfig 返回最近一次 Load 的配置实例，未加载时返回 nil.
func GetConfig() *AppConfig {
	return globalConfig
}

// GetViper 返回最近一次 Load 使用的 Viper 实例.
func GetViper() *viper.Viper {
	return appViper
}
