// Package middleware 提供 gin 中间件：请求 ID 与访问日志、认证、限流、恢复、监控与追踪.
package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/folderrelay/pkg/internal/service"
	"github.com/yeisme/folderrelay/pkg/internal/types"
)

// AbortWithError 把错误渲染为统一的失败响应并中止后续处理.
// 非 RelayError 一律按 INTERNAL_ERROR 返回通用信息.
func AbortWithError(c *gin.Context, err error) {
	re := service.AsRelayError(err)
	_ = c.Error(err)

	c.AbortWithStatusJSON(re.Status, types.ErrorResponse{
		OK:      false,
		Error:   re.Code,
		Message: re.Message,
		Details: re.Details,
	})
}
