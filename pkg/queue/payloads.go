package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪 ID，来自当前 span.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// BatchRef 标识一个上传批次.
type BatchRef struct {
	BatchID    string `json:"batch_id"`
	ClientID   string `json:"client_id,omitempty"`
	FileCount  int    `json:"file_count"`
	TotalBytes int64  `json:"total_bytes"`
}

// BatchForwardedPayload 批次被下游接受.
type BatchForwardedPayload struct {
	Batch            BatchRef `json:"batch"`
	Paths            []string `json:"paths,omitempty"`
	DownstreamStatus int      `json:"downstream_status"`
	Attempts         int      `json:"attempts"`
	JobID            string   `json:"job_id,omitempty"`
	DurationMs       int64    `json:"duration_ms"`
}

// BatchFailedPayload 批次转发失败；Reason 不包含任何密钥.
type BatchFailedPayload struct {
	Batch            BatchRef `json:"batch"`
	State            string   `json:"state"`
	DownstreamStatus int      `json:"downstream_status,omitempty"`
	Attempts         int      `json:"attempts"`
	Reason           string   `json:"reason,omitempty"`
	DurationMs       int64    `json:"duration_ms"`
}
