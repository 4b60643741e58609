package middleware

import (
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/folderrelay/pkg/configs"
	"github.com/yeisme/folderrelay/pkg/internal/service"
	"github.com/yeisme/folderrelay/pkg/log"
	"github.com/yeisme/folderrelay/pkg/metrics"
	"github.com/yeisme/folderrelay/pkg/ratelimit"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// RateLimitMiddleware 固定窗口限流，超限返回 429 RATE_LIMITED 与 Retry-After.
// keyMode 选择维度：global、ip（默认）或 header:Header-Name（缺失时回退到 IP）.
// 存储出错时放行请求并记录日志.
func RateLimitMiddleware(limiter *ratelimit.Limiter, keyMode string) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	keyFn := keyFunc(keyMode)

	return func(c *gin.Context) {
		d, err := limiter.Check(c.Request.Context(), keyFn(c))
		if err != nil {
			log.Logger().Warn().Err(err).Msg("rate limit store unavailable, allowing request")
			c.Next()

			return
		}

		c.Header(HeaderRateLimitLimit, strconv.Itoa(limiter.MaxRequests()))
		c.Header(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining()))
		c.Header(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))

		if !d.Allowed {
			metrics.RateLimitDecisions.WithLabelValues("denied").Inc()
			c.Header("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
			AbortWithError(c, service.RateLimitError(d.RetryAfterSeconds))

			return
		}

		metrics.RateLimitDecisions.WithLabelValues("allowed").Inc()
		c.Next()
	}
}

// GlobalRateLimitMiddleware 进程级令牌桶，GlobalRPS 为 0 时不生效.
func GlobalRateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.GlobalRPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	burst := max(cfg.GlobalBurst, 1)
	limiter := rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)

	return func(c *gin.Context) {
		r := limiter.Reserve()
		if delay := r.Delay(); delay > 0 {
			r.Cancel()

			secs := max(int((delay+time.Second-1)/time.Second), 1)

			metrics.RateLimitDecisions.WithLabelValues("denied").Inc()
			c.Header("Retry-After", strconv.Itoa(secs))
			AbortWithError(c, service.RateLimitError(secs))

			return
		}

		c.Next()
	}
}

func keyFunc(keyMode string) func(c *gin.Context) string {
	mode := strings.TrimSpace(keyMode)

	switch {
	case strings.EqualFold(mode, "global"):
		return func(*gin.Context) string { return "global" }
	case strings.HasPrefix(strings.ToLower(mode), "header:"):
		h := strings.TrimSpace(mode[len("header:"):])

		return func(c *gin.Context) string {
			if v := strings.TrimSpace(c.GetHeader(h)); v != "" {
				return "h:" + v
			}

			return clientIP(c)
		}
	default:
		return clientIP
	}
}

func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if ip == "" {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err == nil {
			ip = host
		} else {
			ip = c.Request.RemoteAddr
		}
	}

	if ip == "" {
		ip = "unknown"
	}

	return ip
}
