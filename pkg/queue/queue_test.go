package queue_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/queue"
)

type capture struct {
	topics []string
	msgs   []*message.Message
	err    error
}

func (c *capture) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	if c.err != nil {
		return c.err
	}

	for range msgs {
		c.topics = append(c.topics, topic)
	}

	c.msgs = append(c.msgs, msgs...)

	return nil
}

func enabled() configs.EventsConfig {
	return configs.EventsConfig{Enabled: true, Forwarded: true, Failed: true}
}

func TestBatchForwardedEnvelope(t *testing.T) {
	pub := &capture{}
	events := queue.NewEvents(pub, enabled())

	err := events.BatchForwarded(context.Background(), queue.BatchForwardedPayload{
		Batch:            queue.BatchRef{BatchID: "B1", FileCount: 2, TotalBytes: 19},
		Paths:            []string{"Wedding/IMG_001.jpg", "Wedding/RAW/IMG_001.CR3"},
		DownstreamStatus: 200,
		Attempts:         1,
		JobID:            "J1",
	})
	require.NoError(t, err)
	require.Len(t, pub.msgs, 1)
	assert.Equal(t, queue.TopicBatchForwarded, pub.topics[0])
	assert.Equal(t, queue.TopicBatchForwarded, pub.msgs[0].Metadata.Get("topic"))

	env, err := queue.ParseWatermillMessage[queue.BatchForwardedPayload](pub.msgs[0])
	require.NoError(t, err)
	assert.Equal(t, configs.AppName, env.Header.Producer)
	assert.Equal(t, queue.PayloadVersionV1, env.Header.Version)
	assert.Equal(t, "B1", env.Payload.Batch.BatchID)
	assert.Equal(t, "J1", env.Payload.JobID)
	assert.Len(t, env.Payload.Paths, 2)
}

func TestEventsSwitches(t *testing.T) {
	pub := &capture{}

	disabled := queue.NewEvents(pub, configs.EventsConfig{Enabled: false, Forwarded: true, Failed: true})
	require.NoError(t, disabled.BatchFailed(context.Background(), queue.BatchFailedPayload{State: "exhausted"}))
	assert.Empty(t, pub.msgs)

	onlyFailed := queue.NewEvents(pub, configs.EventsConfig{Enabled: true, Failed: true})
	require.NoError(t, onlyFailed.BatchForwarded(context.Background(), queue.BatchForwardedPayload{}))
	require.NoError(t, onlyFailed.BatchFailed(context.Background(), queue.BatchFailedPayload{State: "exhausted"}))
	assert.Equal(t, []string{queue.TopicBatchFailed}, pub.topics)

	var nilEvents *queue.Events
	assert.False(t, nilEvents.Enabled())
	assert.False(t, queue.NewEvents(nil, enabled()).Enabled())
}

func TestPublishErrorIsReturned(t *testing.T) {
	pub := &capture{err: errors.New("broker down")}

	err := queue.NewEvents(pub, enabled()).BatchFailed(context.Background(), queue.BatchFailedPayload{})
	assert.EqualError(t, err, "broker down")
}

func TestEncodeDecode(t *testing.T) {
	in := queue.Message[queue.BatchFailedPayload]{
		Header:  queue.NewEventHeader(queue.TopicBatchFailed, queue.WithTraceID("abc")),
		Payload: queue.BatchFailedPayload{State: "permanent_failure", DownstreamStatus: 400},
	}

	data, err := queue.Encode(in)
	require.NoError(t, err)

	out, err := queue.Decode[queue.BatchFailedPayload](data)
	require.NoError(t, err)
	assert.Equal(t, "abc", out.Header.TraceID)
	assert.Equal(t, 400, out.Payload.DownstreamStatus)
	assert.Contains(t, queue.Topics(), queue.TopicBatchFailed)
}
