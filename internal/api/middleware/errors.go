package middleware

import (
	"log/slog"

	"noiton/internal/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// WriteError 把错误写成 {error, details?} 响应。
//
// 非业务错误按 500 返回通用消息，原始错误只进入日志。
func WriteError(c *gin.Context, logger *slog.Logger, err error) {
	e := apperr.From(err)
	if e.Kind == apperr.KindInternal && logger != nil {
		cause := err
		if e.Cause != nil {
			cause = e.Cause
		}
		logger.Error("request failed",
			slog.String("request_id", RequestID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.String("error", cause.Error()))
	}
	body := gin.H{"error": e.Message}
	if e.Details != nil {
		body["details"] = e.Details
	}
	c.AbortWithStatusJSON(e.Status(), body)
}
