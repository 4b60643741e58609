// Package service 负责中继业务逻辑：校验、路径规范化、转发与事件，不处理 HTTP 细节.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/forwarder"
	"github.com/yeisme/folderrelay/pkg/internal/types"
	nlog "github.com/yeisme/folderrelay/pkg/log"
	"github.com/yeisme/folderrelay/pkg/metrics"
	"github.com/yeisme/folderrelay/pkg/queue"
	"github.com/yeisme/folderrelay/pkg/upload"
)

// Forwarder 把批次发送到下游，*forwarder.Forwarder 满足该接口.
type Forwarder interface {
	Forward(ctx context.Context, b *upload.Batch) forwarder.Result
}

// RelayService 上传中继服务，可并发使用.
type RelayService struct {
	webhook configs.WebhookConfig
	limits  upload.Limits
	fwd     Forwarder
	events  *queue.Events
}

// LimitsFrom 由上传配置构造校验限制.
func LimitsFrom(u configs.UploadConfig) upload.Limits {
	return upload.NewLimits(u.MaxFileBytes, u.MaxTotalBytes, u.MaxFileCount,
		u.AllowedExtensions, u.AllowedMimeTypes, u.RequireMimeMatch)
}

// NewRelayService 创建中继服务；events 可以为 nil.
func NewRelayService(cfg *configs.AppConfig, fwd Forwarder, events *queue.Events) *RelayService {
	return &RelayService{
		webhook: cfg.Webhook,
		limits:  LimitsFrom(cfg.Upload),
		fwd:     fwd,
		events:  events,
	}
}

// Limits 返回当前的校验限制.
func (s *RelayService) Limits() upload.Limits {
	return s.limits
}

// Missing 返回缺失的 webhook 配置项名称.
func (s *RelayService) Missing() []string {
	return s.webhook.Missing()
}

// Ready 在读取请求体之前检查必需配置.
func (s *RelayService) Ready() error {
	if missing := s.webhook.Missing(); len(missing) > 0 {
		return ConfigurationError(missing)
	}

	return nil
}

// Process 校验、规范化并转发批次.
// 校验或路径失败时不会联系下游.
func (s *RelayService) Process(ctx context.Context, b *upload.Batch) (*types.UploadResponse, error) {
	if err := s.Ready(); err != nil {
		metrics.UploadRejections.WithLabelValues("misconfigured").Inc()
		return nil, err
	}

	metrics.UploadFiles.Observe(float64(b.FileCount()))
	metrics.UploadBytes.Observe(float64(b.TotalBytes()))

	result := upload.Validate(b, s.limits)
	if !result.Valid {
		metrics.UploadRejections.WithLabelValues("validation").Inc()

		return nil, ValidationError(
			fmt.Sprintf("upload failed validation with %d error(s)", len(result.Errors)),
			result.Errors, result.Warnings)
	}

	normalized, err := b.Normalized()
	if err != nil {
		metrics.UploadRejections.WithLabelValues("path").Inc()
		return nil, ValidationError("upload contains an invalid file path", []string{err.Error()}, result.Warnings)
	}

	res := s.fwd.Forward(ctx, normalized)

	ref := queue.BatchRef{
		BatchID:    normalized.ID,
		ClientID:   s.webhook.ClientID,
		FileCount:  normalized.FileCount(),
		TotalBytes: normalized.TotalBytes(),
	}

	if !res.Succeeded {
		reason := ""
		if res.Err != nil {
			reason = res.Err.Error()
		}

		s.publishFailed(ctx, queue.BatchFailedPayload{
			Batch:            ref,
			State:            res.State.String(),
			DownstreamStatus: res.HTTPStatus,
			Attempts:         res.Attempts(),
			Reason:           reason,
			DurationMs:       res.Duration.Milliseconds(),
		})

		return nil, ForwardingError(res)
	}

	jobID, executionID := ParseDownstream(res.Body)

	s.publishForwarded(ctx, queue.BatchForwardedPayload{
		Batch:            ref,
		Paths:            normalized.Paths(),
		DownstreamStatus: res.HTTPStatus,
		Attempts:         res.Attempts(),
		JobID:            jobID,
		DurationMs:       res.Duration.Milliseconds(),
	})

	return &types.UploadResponse{
		OK:             true,
		Message:        fmt.Sprintf("%d file(s) forwarded to webhook", normalized.FileCount()),
		FilesProcessed: normalized.FileCount(),
		TotalBytes:     normalized.TotalBytes(),
		BatchID:        normalized.ID,
		JobID:          jobID,
		N8nResponse:    &types.DownstreamResponse{Status: res.HTTPStatus, ExecutionID: executionID},
		Warnings:       result.Warnings,
	}, nil
}

func (s *RelayService) publishForwarded(ctx context.Context, p queue.BatchForwardedPayload) {
	if err := s.events.BatchForwarded(ctx, p); err != nil {
		nlog.Logger().Debug().Err(err).Str("batch_id", p.Batch.BatchID).Msg("forwarded event dropped")
	}
}

func (s *RelayService) publishFailed(ctx context.Context, p queue.BatchFailedPayload) {
	if err := s.events.BatchFailed(ctx, p); err != nil {
		nlog.Logger().Debug().Err(err).Str("batch_id", p.Batch.BatchID).Msg("failed event dropped")
	}
}

// ParseDownstream 从下游 JSON 响应中提取 jobId 与 executionId；
// 非 JSON 或字段缺失时返回空串. 数组响应取第一个元素.
func ParseDownstream(body string) (jobID, executionID string) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ""
	}

	var obj map[string]any

	if strings.HasPrefix(body, "[") {
		var arr []map[string]any
		if err := sonic.UnmarshalString(body, &arr); err != nil || len(arr) == 0 {
			return "", ""
		}

		obj = arr[0]
	} else if err := sonic.UnmarshalString(body, &obj); err != nil {
		return "", ""
	}

	executionID = stringField(obj, "executionId")
	jobID = stringField(obj, "jobId")

	if jobID == "" {
		jobID = stringField(obj, "id")
	}

	if jobID == "" {
		jobID = executionID
	}

	return jobID, executionID
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
