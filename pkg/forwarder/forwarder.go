// Package forwarder 把上传批次以 multipart 形式转发到下游 webhook，
// 带单次超时、有界重试、退避以及可选的熔断.
//
// 重试决策由纯函数 Policy 给出，Forwarder 只负责执行请求、等待与记录.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/log"
	"github.com/yeisme/folderrelay/pkg/metrics"
	"github.com/yeisme/folderrelay/pkg/tracing"
	"github.com/yeisme/folderrelay/pkg/upload"
)

var (
	// ErrCircuitOpen 熔断器打开，未向下游发起请求.
	ErrCircuitOpen = errors.New("webhook circuit breaker is open")
	// ErrNotConfigured 缺少下游地址.
	ErrNotConfigured = errors.New("webhook endpoint is not configured")

	errExhausted = errors.New("webhook retries exhausted")
)

const drainLimit = 1 << 20

// Config 转发器配置.
type Config struct {
	Endpoint     string
	Secret       string
	SecretHeader string
	ClientID     string
	Timeout      time.Duration
	MaxRetries   int
	Backoff      []time.Duration
	Jitter       float64
	MaxBodyBytes int64
}

// ConfigFrom 由 webhook 配置段构造转发器配置.
func ConfigFrom(w configs.WebhookConfig) Config {
	return Config{
		Endpoint:     w.URL,
		Secret:       w.Secret,
		SecretHeader: w.SecretHeader,
		ClientID:     w.ClientID,
		Timeout:      w.GetTimeout(),
		MaxRetries:   w.MaxRetries,
		Backoff:      w.Backoff,
		Jitter:       w.Jitter,
		MaxBodyBytes: w.MaxBodyBytes,
	}
}

// Policy 返回配置对应的重试策略.
func (c Config) Policy() Policy {
	return Policy{MaxRetries: c.MaxRetries, Backoff: c.Backoff, Jitter: c.Jitter}
}

// Result 一次 Forward 调用的结果.
type Result struct {
	HTTPStatus   int           // 最后一次收到的状态码，0 表示没有收到响应
	Succeeded    bool          // 下游返回 2xx
	Body         string        // 最后一次响应体（截断到 MaxBodyBytes）
	AttemptsUsed int           // 最后一次尝试的序号，从 0 开始
	State        State         // 终态
	Err          error         // 最后一次传输错误或失败原因
	Duration     time.Duration // 含退避在内的总耗时
}

// Attempts 返回实际发起的请求次数.
func (r Result) Attempts() int {
	if r.State == CircuitOpen {
		return 0
	}

	return r.AttemptsUsed + 1
}

// Sleeper 在 ctx 结束前等待 d；ctx 先结束时返回 ctx 的错误.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option 转发器可选项.
type Option func(*Forwarder)

// WithHTTPClient 使用自定义 http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Forwarder) { f.client = client }
}

// WithSleeper 替换退避等待实现，主要用于测试.
func WithSleeper(s Sleeper) Option {
	return func(f *Forwarder) { f.sleep = s }
}

// WithBreaker 按配置启用熔断；仅重试用尽计为失败，4xx 与取消不会使熔断器打开.
func WithBreaker(cfg configs.CircuitBreakerConfig) Option {
	return func(f *Forwarder) {
		if !cfg.Enabled {
			return
		}

		f.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "webhook",
			MaxRequests: cfg.MaxRequestsInHalf,
			Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
			Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.MinRequests {
					return false
				}

				failureRate := float64(counts.TotalFailures) / float64(counts.Requests)

				return failureRate >= cfg.FailureRate
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Logger().Warn().Str("breaker", name).
					Str("from", from.String()).Str("to", to.String()).
					Msg("circuit breaker state changed")
			},
		})
	}
}

// Forwarder 下游 webhook 转发器，可并发使用.
type Forwarder struct {
	cfg     Config
	policy  Policy
	client  *http.Client
	sleep   Sleeper
	breaker *gobreaker.CircuitBreaker
}

// New 创建转发器.
func New(cfg Config, opts ...Option) *Forwarder {
	f := &Forwarder{
		cfg:    cfg,
		policy: cfg.Policy(),
		client: &http.Client{
			// 3xx 不跟随，按永久失败处理
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		sleep: sleepCtx,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Config 返回转发器配置.
func (f *Forwarder) Config() Config {
	return f.cfg
}

// Forward 把已规范化的批次转发到下游，按策略重试直到终态.
// ctx 通常是入站请求的上下文，客户端断开会取消进行中的尝试与退避.
func (f *Forwarder) Forward(ctx context.Context, b *upload.Batch) Result {
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, "forwarder.Forward", trace.WithAttributes(
		attribute.String("relay.batch_id", b.ID),
		attribute.Int("relay.file_count", b.FileCount()),
		attribute.Int64("relay.total_bytes", b.TotalBytes()),
	))
	defer span.End()

	var res Result

	if f.breaker == nil {
		res = f.run(ctx, b)
	} else {
		_, err := f.breaker.Execute(func() (any, error) {
			res = f.run(ctx, b)
			if res.State == Exhausted {
				return nil, errExhausted
			}

			return nil, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			res = Result{State: CircuitOpen, Err: ErrCircuitOpen}
		}
	}

	res.Duration = time.Since(start)

	metrics.ForwardResults.WithLabelValues(res.State.String()).Inc()
	metrics.ForwardDuration.WithLabelValues(res.State.String()).Observe(res.Duration.Seconds())

	span.SetAttributes(
		attribute.String("relay.state", res.State.String()),
		attribute.Int("relay.attempts", res.Attempts()),
		attribute.Int("http.status_code", res.HTTPStatus),
	)

	var event *zerolog.Event
	if res.Succeeded {
		event = log.Logger().Info()
	} else {
		span.SetStatus(codes.Error, res.State.String())
		event = log.Logger().Warn().AnErr("last_error", res.Err)
	}

	event.Str("batch_id", b.ID).
		Str("state", res.State.String()).
		Int("status", res.HTTPStatus).
		Int("attempts", res.Attempts()).
		Dur("duration", res.Duration).
		Msg("webhook forward finished")

	return res
}

// run 执行重试循环.
func (f *Forwarder) run(ctx context.Context, b *upload.Batch) Result {
	if f.cfg.Endpoint == "" {
		return Result{State: PermanentFailure, Err: ErrNotConfigured}
	}

	meta, err := encodeMeta(b)
	if err != nil {
		return Result{State: PermanentFailure, Err: err}
	}

	digest := MetaDigest(meta)

	var res Result

	for n := 0; ; n++ {
		res.AttemptsUsed = n

		status, body, err := f.attempt(ctx, b, meta, digest, n)
		res.Err = err

		// 无响应的尝试保留之前观察到的最后状态码与响应体
		if status != 0 {
			res.HTTPStatus, res.Body = status, body
		}

		if ctx.Err() != nil {
			res.State = Canceled
			res.Err = ctx.Err()
			metrics.ForwardAttempts.WithLabelValues("canceled").Inc()

			return res
		}

		outcome := Outcome{Status: status, Err: err}
		state, delay := f.policy.Next(n, outcome)
		metrics.ForwardAttempts.WithLabelValues(outcomeLabel(f.policy.Classify(outcome))).Inc()

		switch state {
		case Success:
			res.State, res.Succeeded = Success, true
			return res
		case PermanentFailure, Exhausted:
			res.State = state
			if res.Err == nil {
				res.Err = fmt.Errorf("webhook responded with status %d", status)
			}

			return res
		}

		log.Logger().Warn().
			Str("batch_id", b.ID).
			Int("attempt", n).
			Int("status", status).
			AnErr("error", err).
			Dur("backoff", delay).
			Msg("webhook attempt failed, retrying")

		if err := f.sleep(ctx, delay); err != nil {
			res.State = Canceled
			res.Err = err

			return res
		}
	}
}

// attempt 发起第 n 次请求，返回状态码、截断后的响应体和传输错误.
func (f *Forwarder) attempt(ctx context.Context, b *upload.Batch, meta []byte, digest string, n int) (int, string, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, "forwarder.attempt", trace.WithAttributes(
		attribute.Int("relay.attempt", n),
	))
	defer span.End()

	req, wait, err := f.buildRequest(ctx, b, meta, digest, n)
	if err != nil {
		return 0, "", err
	}
	defer wait()

	resp, err := f.client.Do(req)
	if err != nil {
		span.RecordError(err)
		return 0, "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	limit := f.cfg.MaxBodyBytes
	if limit <= 0 {
		limit = drainLimit
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		// 已收到状态码，响应体读取失败不影响分类
		log.Logger().Debug().Err(err).Msg("failed to read webhook response body")
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	return resp.StatusCode, string(body), nil
}

func outcomeLabel(s State) string {
	switch s {
	case Success:
		return "success"
	case PermanentFailure:
		return "permanent"
	default:
		return "retryable"
	}
}

// sleepCtx 可被 ctx 打断的等待.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
