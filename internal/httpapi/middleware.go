package httpapi

import (
	"strings"
	"time"

	"memory-credits-go/internal/metrics"
	"memory-credits-go/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const HeaderRequestID = "X-Request-Id"

// RequestID propagates the caller's request id, or assigns one, and attaches
// it to the request context for downstream log lines.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestId := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestId == "" {
			requestId = uuid.New().String()
		}
		c.Header(HeaderRequestID, requestId)

		ctx := models.WithRequestContext(c.Request.Context(), &models.RequestContext{
			RequestId: requestId,
			Route:     c.FullPath(),
			ClientIP:  c.ClientIP(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Instrument records request latency by route template.
func Instrument() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(started)
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		zap.L().Debug("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", elapsed),
			zap.String("request_id", models.RequestIdFromContext(c.Request.Context())))
	}
}
