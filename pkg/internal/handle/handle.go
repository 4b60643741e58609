// Package handle 提供 HTTP 请求处理器的实现，只负责协议解析与响应渲染，业务逻辑在 service 包中.
package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/folderrelay/pkg/internal/types"
)

// DefaultHandler 未实现的占位处理器.
func DefaultHandler(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, types.ErrorResponse{Error: "NOT_IMPLEMENTED", Message: "not implemented"})
}

// DefaultHandlers 在未注入实现时使用，所有路由返回 501.
type DefaultHandlers struct{}

func (DefaultHandlers) Upload() gin.HandlerFunc { return DefaultHandler }
func (DefaultHandlers) Health() gin.HandlerFunc { return DefaultHandler }
