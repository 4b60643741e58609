// Package app 负责组装各组件并管理 HTTP 服务的生命周期.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/yeisme/folderrelay/pkg/api"
	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/forwarder"
	"github.com/yeisme/folderrelay/pkg/internal/jobs"
	"github.com/yeisme/folderrelay/pkg/internal/service"
	"github.com/yeisme/folderrelay/pkg/internal/storage"
	"github.com/yeisme/folderrelay/pkg/log"
	"github.com/yeisme/folderrelay/pkg/metrics"
	"github.com/yeisme/folderrelay/pkg/queue"
	"github.com/yeisme/folderrelay/pkg/ratelimit"
	"github.com/yeisme/folderrelay/pkg/scheduler"
	"github.com/yeisme/folderrelay/pkg/tracing"
)

const readHeaderTimeout = 10 * time.Second

// App 持有运行期组件.
type App struct {
	Engine *gin.Engine
	Server *http.Server

	config    *configs.AppConfig
	storage   *storage.Manager
	scheduler *scheduler.Scheduler
}

// New 按配置初始化日志、追踪、监控、存储、限流、调度与转发组件.
func New(ctx context.Context, cfg *configs.AppConfig) (*App, error) {
	log.Init(cfg)

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := tracing.InitTracer(cfg.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	manager, err := storage.Init(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	limiter := newLimiter(cfg.RateLimit, manager)

	sched, err := scheduler.NewScheduler()
	if err != nil {
		_ = manager.Close()
		return nil, fmt.Errorf("init scheduler: %w", err)
	}

	if cfg.RateLimit.Enabled {
		if err := jobs.RegisterJobs(ctx, sched, limiter, cfg.RateLimit.SweepInterval); err != nil {
			_ = manager.Close()
			return nil, fmt.Errorf("register jobs: %w", err)
		}
	}

	fwd := forwarder.New(forwarder.ConfigFrom(cfg.Webhook), forwarder.WithBreaker(cfg.CircuitBreaker))

	var events *queue.Events
	if mq := manager.GetMQClient(); mq != nil {
		events = queue.NewEvents(mq, cfg.Events)
	}

	relay := service.NewRelayService(cfg, fwd, events)

	if missing := relay.Missing(); len(missing) > 0 {
		l.Warn().Strs("missing", missing).Msg("webhook is not configured, uploads will be rejected")
	}

	engine := api.NewEngine(api.Deps{
		Config:    cfg,
		Relay:     relay,
		Limiter:   limiter,
		Storage:   manager,
		Scheduler: sched,
	})

	timeout := cfg.Server.GetTimeoutDuration()

	return &App{
		Engine: engine,
		Server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
			Handler:           engine,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       timeout,
			WriteTimeout:      timeout,
			IdleTimeout:       2 * timeout,
		},
		config:    cfg,
		storage:   manager,
		scheduler: sched,
	}, nil
}

// newLimiter 选择限流记录存储：kv 使用已初始化的 KV 后端，其余使用进程内存.
func newLimiter(cfg configs.RateLimitConfig, manager *storage.Manager) *ratelimit.Limiter {
	var store ratelimit.Store = ratelimit.NewMemoryStore()

	if cfg.Store == "kv" {
		if kvc := manager.GetKVClient(); kvc != nil {
			store = ratelimit.NewKVStore(kvc.KVStore)
		}
	}

	return ratelimit.New(store, cfg.MaxRequests, cfg.Window)
}

// Run 启动 HTTP 服务与调度器，ctx 取消后优雅关闭.
func (a *App) Run(ctx context.Context) error {
	l := log.Logger()

	g, gctx := errgroup.WithContext(ctx)

	a.scheduler.Start()

	g.Go(func() error {
		l.Info().Str("addr", a.Server.Addr).Str("version", configs.AppVersion).Msg("folderrelay listening")

		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.config.Server.GetShutdownTimeout())
		defer cancel()

		l.Info().Msg("shutting down")

		return a.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Shutdown 依次停止 HTTP 服务、调度器、存储与追踪导出器.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	if err := a.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
	}

	if err := a.storage.Close(); err != nil {
		errs = append(errs, fmt.Errorf("storage close: %w", err))
	}

	if err := tracing.ShutdownTracer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
	}

	return errors.Join(errs...)
}
