package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterHealthCheckRoute 注册健康检查路由.
func RegisterHealthCheckRoute(r gin.IRoutes, handlers RelayHandlers) {
	r.GET("/healthz", handlers.Health())
}
