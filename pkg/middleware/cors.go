package middleware

import (
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/folderrelay/pkg/configs"
)

// CORSMiddleware 允许浏览器端从配置的来源直接上传.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	config := cors.DefaultConfig()

	if cfg.Debug || len(cfg.CORSOrigins) == 0 || slices.Contains(cfg.CORSOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = cfg.CORSOrigins
	}

	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AddAllowHeaders("Authorization", HeaderRequestID)
	config.ExposeHeaders = []string{
		HeaderRequestID, "Retry-After",
		HeaderRateLimitLimit, HeaderRateLimitRemaining, HeaderRateLimitReset,
	}

	return cors.New(config)
}

// GzipMiddleware 压缩 JSON 响应；指标与 pprof 路径除外.
func GzipMiddleware(cfg configs.ServerConfig, metricsPath string) gin.HandlerFunc {
	if !cfg.Gzip {
		return func(c *gin.Context) { c.Next() }
	}

	return gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{metricsPath, "/debug/pprof"}))
}
