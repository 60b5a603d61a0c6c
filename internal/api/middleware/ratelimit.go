package middleware

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Limiter 是非阻塞的按 subject 限流（ratelimit.Limiter 实现）。
type Limiter interface {
	Allow(ctx context.Context, subject string) (bool, time.Duration, error)
}

// KeyFunc 决定限流分桶的 subject。
type KeyFunc func(c *gin.Context) string

// ByClientIP 按客户端 IP 分桶。
func ByClientIP(c *gin.Context) string { return c.ClientIP() }

// ByCaller 按已认证用户分桶，未认证时退回客户端 IP。
func ByCaller(c *gin.Context) string {
	if caller := Caller(c); caller.UserID != 0 {
		return "u" + strconv.FormatUint(uint64(caller.UserID), 10)
	}
	return c.ClientIP()
}

// RateLimit 超出配额时返回 429 并设置 Retry-After。Redis 出错时放行。
func RateLimit(l Limiter, key KeyFunc, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, wait, err := l.Allow(c.Request.Context(), key(c))
		if err != nil {
			logger.Warn("rate limit check failed", slog.String("path", c.FullPath()), slog.String("error", err.Error()))
		}
		if !allowed {
			secs := int(math.Ceil(wait.Seconds()))
			if secs < 1 {
				secs = 1
			}
			c.Header("Retry-After", strconv.Itoa(secs))
			abort(c, 429, "Muitas requisições, tente novamente mais tarde")
			return
		}
		c.Next()
	}
}
