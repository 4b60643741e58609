package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/folderrelay/pkg/internal/service"
	"github.com/yeisme/folderrelay/pkg/internal/types"
	"github.com/yeisme/folderrelay/pkg/log"
)

// RecoveryMiddleware 捕获 panic 并返回 500 INTERNAL_ERROR；仅调试模式附带 panic 内容.
func RecoveryMiddleware(debug bool) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(log.NewGinWriter(log.Logger(), zerolog.ErrorLevel), func(c *gin.Context, recovered any) {
		log.Logger().Error().
			Str("path", c.Request.URL.Path).
			Interface("panic", recovered).
			Msg("recovered from panic")

		resp := types.ErrorResponse{
			Error:   service.CodeInternalError,
			Message: "internal server error",
		}
		if debug {
			resp.Details = map[string]any{"panic": fmt.Sprint(recovered)}
		}

		c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
	})
}
