package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
)

// RequestLogger logs one line per request. Health checks and metrics scrapes are skipped.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.URL.Path {
		case "/health", "/ready", "/metrics":
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if op, ok := GetOperator(c); ok {
			fields = append(fields, zap.String("operator_id", op.ID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.ErrorContext(c.Request.Context(), "request failed", fields...)
		case status >= 400:
			log.WarnContext(c.Request.Context(), "request rejected", fields...)
		default:
			log.InfoContext(c.Request.Context(), "request", fields...)
		}
	}
}
