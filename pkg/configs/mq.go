package configs

import (
	"github.com/spf13/viper"
)

// MQType 消息队列类型.
type MQType string

const (
	MQTypeGoChannel MQType = "gochannel"
	MQTypeNATS      MQType = "nats"

	DefaultMQURL         = "localhost:4222"
	DefaultMaxReconnects = 5             // 默认最大重连次数.
	DefaultReconnectWait = 5             // 默认重连等待时间（秒）.
	DefaultMQClientID    = "folderrelay" // 默认客户端ID

	// JetStream 流配置常量.

	DefaultStreamMaxMsgs  = 1000000           // 默认流最大消息数
	DefaultStreamMaxBytes = 256 * 1024 * 1024 // 默认流最大字节数 (256MB)
	DefaultStreamMaxAge   = 24                // 默认流最大年龄 (小时)

	// 队列配置常量.

	DefaultMaxPingsOut      = 3   // 默认最大ping输出次数
	DefaultPingInterval     = 20  // 默认ping间隔 (秒)
	DefaultGoChannelBufSize = 128 // 进程内通道缓冲
)

// MQConfig 消息队列配置，用于发布中继事件.
type MQConfig struct {
	Type   MQType         `mapstructure:"type"   rule:"oneof=gochannel nats"`
	Common MQCommonConfig `mapstructure:"common"`
	NATS   MQNATSConfig   `mapstructure:"nats"`
}

// MQCommonConfig 通用MQ配置.
type MQCommonConfig struct {
	URL             string `mapstructure:"url"              rule:"hostname_port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	MaxReconnects   int    `mapstructure:"max_reconnects"   rule:"min=0,max=100"`
	ReconnectWait   int    `mapstructure:"reconnect_wait"   rule:"min=1,max=300"`
	MaxPingsOut     int    `mapstructure:"max_pings_out"    rule:"min=1,max=10"`
	PingInterval    int    `mapstructure:"ping_interval"    rule:"min=1,max=300"`
	ReconnectJitter bool   `mapstructure:"reconnect_jitter"`
	BufferSize      int64  `mapstructure:"buffer_size"      rule:"min=0"` // gochannel 输出缓冲
}

// MQNATSConfig NATS MQ 配置.
type MQNATSConfig struct {
	JetStreamEnabled       bool     `mapstructure:"jetstream_enabled"`
	JetStreamAutoProvision bool     `mapstructure:"jetstream_auto_provision"`
	JetStreamTrackMsgID    bool     `mapstructure:"jetstream_track_msg_id"`
	JetStreamAckAsync      bool     `mapstructure:"jetstream_ack_async"`
	JetStreamDurablePrefix string   `mapstructure:"jetstream_durable_prefix"`
	SubjectPrefix          string   `mapstructure:"subject_prefix"`
	StreamMaxMsgs          int64    `mapstructure:"stream_max_msgs"`
	StreamMaxBytes         int64    `mapstructure:"stream_max_bytes"`
	StreamMaxAge           int      `mapstructure:"stream_max_age"`
	ClusterURLs            []string `mapstructure:"cluster_urls"`
}

// GetMQType 返回当前配置的消息队列类型.
func (c *MQConfig) GetMQType() MQType {
	return c.Type
}

// setDefaults 设置MQ配置的默认值.
func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeGoChannel)

	// Common 默认值
	v.SetDefault("mq.common.url", DefaultMQURL)
	v.SetDefault("mq.common.user", "")
	v.SetDefault("mq.common.password", "")
	v.SetDefault("mq.common.client_id", DefaultMQClientID)
	v.SetDefault("mq.common.max_reconnects", DefaultMaxReconnects)
	v.SetDefault("mq.common.reconnect_wait", DefaultReconnectWait)
	v.SetDefault("mq.common.max_pings_out", DefaultMaxPingsOut)
	v.SetDefault("mq.common.ping_interval", DefaultPingInterval)
	v.SetDefault("mq.common.reconnect_jitter", true)
	v.SetDefault("mq.common.buffer_size", DefaultGoChannelBufSize)

	// NATS 默认值
	v.SetDefault("mq.nats.jetstream_enabled", false)
	v.SetDefault("mq.nats.jetstream_auto_provision", true)
	v.SetDefault("mq.nats.jetstream_track_msg_id", true)
	v.SetDefault("mq.nats.jetstream_ack_async", false)
	v.SetDefault("mq.nats.jetstream_durable_prefix", "folderrelay-durable")
	v.SetDefault("mq.nats.subject_prefix", "")
	v.SetDefault("mq.nats.stream_max_msgs", DefaultStreamMaxMsgs)
	v.SetDefault("mq.nats.stream_max_bytes", DefaultStreamMaxBytes)
	v.SetDefault("mq.nats.stream_max_age", DefaultStreamMaxAge)
	v.SetDefault("mq.nats.cluster_urls", []string{})
}
