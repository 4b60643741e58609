package handle

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/folderrelay/pkg/configs"
	ctxPkg "github.com/yeisme/folderrelay/pkg/context"
	"github.com/yeisme/folderrelay/pkg/internal/types"
	"github.com/yeisme/folderrelay/pkg/middleware"
)

const timeout = 2 * time.Second

const (
	statusOK        = "ok"
	statusUnhealthy = "unhealthy"
	statusDegraded  = "degraded"
)

// Health 报告配置是否就绪以及 KV、MQ、调度器的状态；只列出缺失的配置项名称.
func (h *RelayHandlers) Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := types.HealthResponse{
			Status:     statusOK,
			Version:    configs.AppVersion,
			Missing:    h.svc.Missing(),
			Components: map[string]types.ComponentHealth{},
		}
		resp.Ready = len(resp.Missing) == 0

		if kv := ctxPkg.GetKVClient(c.Request.Context()); kv != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
			defer cancel()

			if err := kv.Ping(ctx); err != nil {
				resp.Components["kv"] = types.ComponentHealth{Status: statusUnhealthy, Error: err.Error()}
			} else {
				resp.Components["kv"] = types.ComponentHealth{Status: statusOK}
			}
		}

		if mq := ctxPkg.GetMQClient(c.Request.Context()); mq != nil {
			resp.Components["mq"] = types.ComponentHealth{Status: statusOK}
		}

		if sched := middleware.GetScheduler(c); sched != nil {
			resp.Components["scheduler"] = types.ComponentHealth{Status: statusOK}
		}

		code := http.StatusOK

		for _, comp := range resp.Components {
			if comp.Status != statusOK {
				resp.Status = statusDegraded
				code = http.StatusServiceUnavailable
			}
		}

		if !resp.Ready {
			resp.Status = statusUnhealthy
			code = http.StatusServiceUnavailable
		}

		c.JSON(code, resp)
	}
}
