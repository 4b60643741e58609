// Package api 组装 HTTP 引擎：全局中间件链与全部路由.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/internal/handle"
	"github.com/yeisme/folderrelay/pkg/internal/router"
	"github.com/yeisme/folderrelay/pkg/internal/service"
	"github.com/yeisme/folderrelay/pkg/internal/storage"
	"github.com/yeisme/folderrelay/pkg/log"
	"github.com/yeisme/folderrelay/pkg/metrics"
	"github.com/yeisme/folderrelay/pkg/middleware"
	"github.com/yeisme/folderrelay/pkg/ratelimit"
	"github.com/yeisme/folderrelay/pkg/scheduler"
)

// Deps 引擎依赖；Limiter、Storage、Scheduler 可以为 nil，Relay 为 nil 时上传与健康检查返回 501.
type Deps struct {
	Config    *configs.AppConfig
	Relay     *service.RelayService
	Limiter   *ratelimit.Limiter
	Storage   *storage.Manager
	Scheduler *scheduler.Scheduler
}

// NewEngine 创建 gin 引擎并注册全部路由.
//
// 全局中间件：恢复 -> 请求 ID -> 追踪 -> 访问日志 -> 监控 -> CORS -> gzip.
// 上传路由：全局令牌桶 -> 按键限流 -> 认证，被拒绝的凭据同样计入限流.
// 其余路由只经过认证.
func NewEngine(d Deps) *gin.Engine {
	cfg := d.Config

	engine := gin.New()

	// 只有配置中的代理可以通过 X-Forwarded-For 指定客户端 IP
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Logger().Error().Err(err).Msg("invalid trusted proxies, forwarded headers ignored")
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(
		middleware.RecoveryMiddleware(cfg.Server.Debug),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware(),
		middleware.GinLoggerMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.CORSMiddleware(cfg.Server),
		middleware.GzipMiddleware(cfg.Server, cfg.Metrics.Path),
		middleware.StorageMiddleware(d.Storage),
		middleware.SchedulerMiddleware(d.Scheduler),
	)

	var handlers router.RelayHandlers = handle.DefaultHandlers{}
	if d.Relay != nil {
		handlers = handle.NewRelayHandlers(d.Relay, cfg.Upload)
	}

	auth := middleware.AuthMiddleware(cfg.Auth)
	secured := engine.Group("", auth)

	metrics.RegisterRoutes(cfg.Metrics, secured)
	router.RegisterHealthCheckRoute(secured, handlers)
	router.RegisterSchedulerRoutes(secured.Group("/api/v1"))

	var uploadMW []gin.HandlerFunc
	if cfg.RateLimit.Enabled && d.Limiter != nil {
		uploadMW = append(uploadMW,
			middleware.GlobalRateLimitMiddleware(cfg.RateLimit),
			middleware.RateLimitMiddleware(d.Limiter, cfg.RateLimit.Key),
		)
	}

	router.RegisterUploadRoutes(engine, handlers, append(uploadMW, auth)...)

	return engine
}
