package queue

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/log"
)

// Publisher 发布消息的最小接口，mq.Client 满足该接口.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// Events 按配置开关发布中继事件.
type Events struct {
	pub Publisher
	cfg configs.EventsConfig
}

// NewEvents 创建事件发布器；pub 为 nil 或总开关关闭时所有发布都是空操作.
func NewEvents(pub Publisher, cfg configs.EventsConfig) *Events {
	return &Events{pub: pub, cfg: cfg}
}

// Enabled 报告事件发布是否开启.
func (e *Events) Enabled() bool {
	return e != nil && e.pub != nil && e.cfg.Enabled
}

// BatchForwarded 发布 fr.batch.forwarded 事件.
func (e *Events) BatchForwarded(ctx context.Context, payload BatchForwardedPayload) error {
	if !e.Enabled() || !e.cfg.Forwarded {
		return nil
	}

	return publish(ctx, e.pub, TopicBatchForwarded, payload)
}

// BatchFailed 发布 fr.batch.failed 事件.
func (e *Events) BatchFailed(ctx context.Context, payload BatchFailedPayload) error {
	if !e.Enabled() || !e.cfg.Failed {
		return nil
	}

	return publish(ctx, e.pub, TopicBatchFailed, payload)
}

func publish[T any](ctx context.Context, pub Publisher, topic string, payload T) error {
	opts := []func(*EventHeader){WithProducer(configs.AppName)}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		opts = append(opts, WithTraceID(sc.TraceID().String()))
	}

	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	if err := pub.Publish(ctx, topic, msg); err != nil {
		log.Logger().Warn().Err(err).Str("topic", topic).Msg("failed to publish relay event")
		return err
	}

	return nil
}
