package types

import "github.com/yeisme/folderrelay/pkg/scheduler"

// UploadResponse 上传成功响应.
type UploadResponse struct {
	OK             bool                `json:"ok"`
	Message        string              `json:"message"`
	FilesProcessed int                 `json:"filesProcessed"`
	TotalBytes     int64               `json:"totalBytes"`
	BatchID        string              `json:"batchId"`
	JobID          string              `json:"jobId,omitempty"`
	N8nResponse    *DownstreamResponse `json:"n8nResponse,omitempty"`
	Warnings       []string            `json:"warnings,omitempty"`
}

// DownstreamResponse 下游 webhook 的响应摘要.
type DownstreamResponse struct {
	Status      int    `json:"status"`
	ExecutionID string `json:"executionId,omitempty"`
}

// ErrorResponse 所有失败响应的统一结构.
type ErrorResponse struct {
	OK      bool           `json:"ok"`
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ComponentHealth 单个依赖的健康状态.
type ComponentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse 健康检查响应；Missing 只包含配置项名称.
type HealthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version"`
	Ready      bool                       `json:"ready"`
	Missing    []string                   `json:"missing,omitempty"`
	Components map[string]ComponentHealth `json:"components,omitempty"`
}

// JobsResponse 定时任务列表.
type JobsResponse struct {
	Jobs []scheduler.JobInfo `json:"jobs"`
}
