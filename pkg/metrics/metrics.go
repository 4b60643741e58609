// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集 HTTP、限流与 webhook 转发指标.
//
// Example:
//
//	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
//		log.Fatal(err)
//	}
//
//	// 记录指标
//	metrics.ForwardAttempts.WithLabelValues("retryable").Inc()
//	metrics.RequestDuration.WithLabelValues("POST", "/api/v1/upload").Observe(0.1)
package metrics

import (
	"net/http"
	_ "net/http/pprof" // 自动注册pprof端点
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/folderrelay/pkg/configs"
)

const namespace = "folderrelay"

// 全局指标变量.
var (
	// RequestCounter HTTP请求计数器.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration HTTP请求持续时间.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// InFlightRequests 正在处理的请求数.
	InFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of requests currently being served",
		},
	)

	// RateLimitDecisions 限流判定计数，decision 为 allowed 或 denied.
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_decisions_total",
			Help:      "Fixed-window rate limit decisions",
		},
		[]string{"decision"},
	)

	// UploadRejections 未转发即被拒绝的上传，reason 为 validation、path 或 misconfigured.
	UploadRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_rejections_total",
			Help:      "Uploads rejected before contacting the webhook",
		},
		[]string{"reason"},
	)

	// UploadBytes 每批次的总字节数.
	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_batch_bytes",
			Help:      "Total bytes per forwarded batch",
			Buckets:   prometheus.ExponentialBuckets(1<<10, 4, 11), // 1KB .. 1GB
		},
	)

	// UploadFiles 每批次的文件数.
	UploadFiles = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_batch_files",
			Help:      "Number of files per forwarded batch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 11),
		},
	)

	// ForwardAttempts 单次转发尝试计数，outcome 为 success、permanent 或 retryable.
	ForwardAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_attempts_total",
			Help:      "Webhook delivery attempts by outcome",
		},
		[]string{"outcome"},
	)

	// ForwardResults 转发最终状态计数.
	ForwardResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_results_total",
			Help:      "Final webhook forwarding state per batch",
		},
		[]string{"state"},
	)

	// ForwardDuration 一次完整转发（含重试与退避）的耗时.
	ForwardDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "webhook_forward_duration_seconds",
			Help:      "Webhook forwarding duration including retries",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"state"},
	)

	// registry Prometheus注册表.
	registry     = prometheus.NewRegistry()
	registerOnce sync.Once
)

// InitMetrics 初始化Metrics，重复调用只注册一次.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	var err error

	registerOnce.Do(func() {
		// 注册标准收集器
		if config.RuntimeMetrics {
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
		}

		for _, c := range []prometheus.Collector{
			RequestCounter, RequestDuration, InFlightRequests,
			RateLimitDecisions, UploadRejections, UploadBytes, UploadFiles,
			ForwardAttempts, ForwardResults, ForwardDuration,
		} {
			if e := registry.Register(c); e != nil {
				err = e
				return
			}
		}
	})

	return err
}

// RegisterRoutes 在路由上挂载 /metrics 与可选的 pprof 端点.
func RegisterRoutes(config configs.MetricsConfig, r gin.IRoutes) {
	if !config.Enabled {
		return
	}

	path := config.Path
	if path == "" {
		path = "/metrics"
	}

	r.GET(path, gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// 如果启用pprof，注册pprof端点
	if config.Pprof {
		r.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}
