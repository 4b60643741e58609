package service

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/yeisme/folderrelay/pkg/forwarder"
)

// ErrorKind 错误分类.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindAuth
	KindRateLimit
	KindConfiguration
	KindForwarding
	KindUnexpected
)

// 对外错误码.
const (
	CodeValidationFailed    = "VALIDATION_FAILED"
	CodeAuthRequired        = "AUTH_REQUIRED"
	CodeAuthInvalid         = "AUTH_INVALID"
	CodeRateLimited         = "RATE_LIMITED"
	CodeServerMisconfigured = "SERVER_MISCONFIGURED"
	CodeInternalError       = "INTERNAL_ERROR"
	CodeWebhookFailed       = "WEBHOOK_FAILED"
	CodeRequestTooLarge     = "REQUEST_TOO_LARGE"
)

// RelayError 可直接渲染为失败响应的错误；Message 与 Details 不包含任何密钥.
type RelayError struct {
	Kind    ErrorKind
	Code    string
	Status  int
	Message string
	Details map[string]any
	Err     error // 内部原因，只写日志
}

func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}

	return e.Code + ": " + e.Message
}

func (e *RelayError) Unwrap() error { return e.Err }

// ValidationError 客户端输入违反约束，400.
func ValidationError(message string, errs []string, warnings []string) *RelayError {
	details := map[string]any{"errors": errs}
	if len(warnings) > 0 {
		details["warnings"] = warnings
	}

	return &RelayError{
		Kind:    KindValidation,
		Code:    CodeValidationFailed,
		Status:  http.StatusBadRequest,
		Message: message,
		Details: details,
	}
}

// TooLargeError 请求体超过上限，413.
func TooLargeError(limit int64) *RelayError {
	return &RelayError{
		Kind:    KindValidation,
		Code:    CodeRequestTooLarge,
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("request body exceeds %d bytes", limit),
		Details: map[string]any{"limitBytes": limit},
	}
}

// AuthError 缺少或错误的静态凭据，401.
func AuthError(code string) *RelayError {
	msg := "authentication required"
	if code == CodeAuthInvalid {
		msg = "invalid credentials"
	}

	return &RelayError{Kind: KindAuth, Code: code, Status: http.StatusUnauthorized, Message: msg}
}

// RateLimitError 单个 key 请求过多，429.
func RateLimitError(retryAfterSeconds int) *RelayError {
	return &RelayError{
		Kind:    KindRateLimit,
		Code:    CodeRateLimited,
		Status:  http.StatusTooManyRequests,
		Message: fmt.Sprintf("too many requests, retry after %d seconds", retryAfterSeconds),
		Details: map[string]any{"retryAfterSeconds": retryAfterSeconds},
	}
}

// ConfigurationError 服务端缺少必需配置，500；只列出配置项名称.
func ConfigurationError(missing []string) *RelayError {
	return &RelayError{
		Kind:    KindConfiguration,
		Code:    CodeServerMisconfigured,
		Status:  http.StatusInternalServerError,
		Message: "server is not configured: missing " + strings.Join(missing, ", "),
		Details: map[string]any{"missing": missing},
	}
}

// ForwardingError 下游拒绝或重试用尽，502.
func ForwardingError(res forwarder.Result) *RelayError {
	var msg string

	switch res.State {
	case forwarder.PermanentFailure:
		msg = fmt.Sprintf("webhook rejected the upload with status %d", res.HTTPStatus)
	case forwarder.Exhausted:
		msg = fmt.Sprintf("webhook failed after %d attempts", res.Attempts())
	case forwarder.Canceled:
		msg = "upload was canceled before the webhook accepted it"
	case forwarder.CircuitOpen:
		msg = "webhook is temporarily unavailable"
	default:
		msg = "webhook forwarding failed"
	}

	return &RelayError{
		Kind:    KindForwarding,
		Code:    CodeWebhookFailed,
		Status:  http.StatusBadGateway,
		Message: msg,
		Details: map[string]any{
			"downstreamStatus": res.HTTPStatus,
			"attempts":         res.Attempts(),
			"state":            res.State.String(),
		},
		Err: res.Err,
	}
}

// UnexpectedError 未预期的错误，500，只返回通用信息.
func UnexpectedError(err error) *RelayError {
	return &RelayError{
		Kind:    KindUnexpected,
		Code:    CodeInternalError,
		Status:  http.StatusInternalServerError,
		Message: "internal server error",
		Err:     err,
	}
}

// AsRelayError 提取 RelayError，其他错误归为 UnexpectedError.
func AsRelayError(err error) *RelayError {
	var re *RelayError
	if errors.As(err, &re) {
		return re
	}

	return UnexpectedError(err)
}
