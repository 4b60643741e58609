package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/internal/service"
)

// AuthMiddleware 可选的静态凭据校验：
//   - Authorization: Bearer <token> 与 auth.token 比对
//   - Authorization: Basic 与 auth.username / auth.password 比对
//   - 缺少凭据返回 AUTH_REQUIRED，凭据不匹配返回 AUTH_INVALID
//   - 支持通过配置跳过某些路径（如 /metrics, /healthz）.
func AuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !conf.Enabled || c.Request.Method == "OPTIONS" || isSkippedPath(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			c.Header("WWW-Authenticate", `Bearer realm="`+configs.AppName+`"`)
			AbortWithError(c, service.AuthError(service.CodeAuthRequired))

			return
		}

		if !checkCredentials(c, conf) {
			AbortWithError(c, service.AuthError(service.CodeAuthInvalid))
			return
		}

		c.Next()
	}
}

func checkCredentials(c *gin.Context, conf configs.AuthConfig) bool {
	header := strings.TrimSpace(c.GetHeader("Authorization"))

	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return conf.Token != "" && secureEqual(strings.TrimSpace(token), conf.Token)
	}

	user, pass, ok := c.Request.BasicAuth()
	if !ok || conf.Username == "" || conf.Password == "" {
		return false
	}

	// 两次比较都执行，避免根据耗时区分用户名是否正确
	userOK := secureEqual(user, conf.Username)
	passOK := secureEqual(pass, conf.Password)

	return userOK && passOK
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func isSkippedPath(path string, skips []string) bool {
	if path == "" || len(skips) == 0 {
		return false
	}

	for _, p := range skips {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}
