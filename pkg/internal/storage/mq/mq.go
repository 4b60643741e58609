// Package mq 提供基于 Watermill 的统一发布/订阅封装，通过工厂模式抽象不同的 MQ 实现.
//
// 支持的 MQ 类型：
//   - gochannel（进程内，默认）
//   - NATS（可选 JetStream）
//
// 使用示例：
//
//	client, err := mq.New(ctx, cfg.MQ)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	msg := message.NewMessage(watermill.NewUUID(), []byte("hello"))
//	err = client.Publish(ctx, "fr.batch.forwarded", msg)
package mq

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/yeisme/folderrelay/pkg/configs"
	nlog "github.com/yeisme/folderrelay/pkg/log"
)

// ErrNotInitialized 客户端未初始化.
var ErrNotInitialized = errors.New("mq client not initialized")

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
type Factory func(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[configs.MQType]Factory{}
)

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	factories[t] = f
}

// GetRegisteredTypes 返回已注册的 MQ 类型，按名称排序.
func GetRegisteredTypes() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()

	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, string(t))
	}

	slices.Sort(types)

	return types
}

// Option 客户端可选项.
type Option func(*options)

type options struct {
	registerer prometheus.Registerer
}

// WithMetrics 使用 watermill 的 Prometheus 组件装饰 Publisher 与 Subscriber.
func WithMetrics(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

// Client 封装 watermill Publisher 与 Subscriber.
type Client struct {
	typ         configs.MQType
	topicPrefix string
	publisher   message.Publisher
	subscriber  message.Subscriber
	closeOnce   sync.Once
	closeErr    error
}

// New 按配置创建消息队列客户端.
func New(ctx context.Context, cfg configs.MQConfig, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	factoriesMu.RLock()
	factory, ok := factories[cfg.Type]
	factoriesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	logger := NewLoggerAdapter(nlog.Logger())

	pub, sub, err := factory(ctx, &cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	if o.registerer != nil {
		builder := wmetrics.NewPrometheusMetricsBuilder(o.registerer, configs.AppName, "mq")

		if pub, err = builder.DecoratePublisher(pub); err != nil {
			return nil, fmt.Errorf("decorate publisher with metrics: %w", err)
		}

		if sub, err = builder.DecorateSubscriber(sub); err != nil {
			return nil, fmt.Errorf("decorate subscriber with metrics: %w", err)
		}
	}

	c := &Client{typ: cfg.Type, publisher: pub, subscriber: sub}
	if cfg.Type == configs.MQTypeNATS {
		c.topicPrefix = cfg.NATS.SubjectPrefix
	}

	nlog.Logger().Info().Str("type", string(cfg.Type)).Msg("mq client initialized")

	return c, nil
}

// Type 返回客户端的 MQ 类型.
func (c *Client) Type() configs.MQType { return c.typ }

// Topic 返回加上主题前缀后的实际主题.
func (c *Client) Topic(topic string) string { return c.topicPrefix + topic }

// Publisher 返回底层 Publisher.
func (c *Client) Publisher() message.Publisher { return c.publisher }

// Publish 便捷发布.
func (c *Client) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return ErrNotInitialized
	}

	return c.publisher.Publish(c.Topic(topic), msgs...)
}

// Subscribe 便捷订阅.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, ErrNotInitialized
	}

	return c.subscriber.Subscribe(ctx, c.Topic(topic))
}

// Close 关闭资源，可重复调用.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	c.closeOnce.Do(func() {
		var errs []error

		if c.publisher != nil {
			errs = append(errs, c.publisher.Close())
		}

		if c.subscriber != nil {
			errs = append(errs, c.subscriber.Close())
		}

		c.closeErr = errors.Join(errs...)
	})

	return c.closeErr
}
