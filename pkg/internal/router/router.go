// Package router 管理路由配置，只负责将路径和处理器绑定到 gin 引擎.
package router

import (
	"github.com/gin-gonic/gin"
)

// RelayHandlers 定义由应用层注入的具体请求处理器，实现由 pkg/internal/handle 提供.
type RelayHandlers interface {
	Upload() gin.HandlerFunc
	Health() gin.HandlerFunc
}

// RegisterUploadRoutes 绑定上传路由，mw 按顺序只作用于上传（限流、认证）.
//
//	POST /api/v1/upload
//	POST /api/upload      （兼容旧路径）
func RegisterUploadRoutes(e *gin.Engine, handlers RelayHandlers, mw ...gin.HandlerFunc) {
	chain := append(append([]gin.HandlerFunc{}, mw...), handlers.Upload())

	e.Group("/api/v1").POST("/upload", chain...)
	e.Group("/api").POST("/upload", chain...)
}
