package middlewares

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// これより遅いリクエストは WARN で記録する。会話生成はモデル呼び出し8回分かかる
const slowRequestThreshold = 30 * time.Second

// リクエストのログを記録
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", duration.Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("request failed", attrs...)
		case duration > slowRequestThreshold:
			logger.Warn("slow request", attrs...)
		case status >= 400:
			logger.Info("request rejected", attrs...)
		default:
			logger.Debug("request completed", attrs...)
		}
	}
}
