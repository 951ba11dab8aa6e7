package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/response"
)

// TimeoutConfig holds timeout configuration
type TimeoutConfig struct {
	DefaultTimeout time.Duration
	// Overrides are keyed by route template, e.g. "/v1/channels/:type/:ownerId/attachments"
	Overrides map[string]time.Duration
}

// DefaultTimeoutConfig returns default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		DefaultTimeout: 30 * time.Second,
		Overrides:      map[string]time.Duration{},
	}
}

// TimeoutMiddleware bounds request contexts. Websocket upgrades are long lived and skipped.
type TimeoutMiddleware struct {
	config *TimeoutConfig
}

// NewTimeoutMiddleware creates a new timeout middleware
func NewTimeoutMiddleware(config *TimeoutConfig) *TimeoutMiddleware {
	if config == nil {
		config = DefaultTimeoutConfig()
	}
	return &TimeoutMiddleware{config: config}
}

// Middleware returns a Gin middleware for timeout protection
func (tm *TimeoutMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if websocket.IsWebSocketUpgrade(c.Request) {
			c.Next()
			return
		}

		timeout := tm.timeoutFor(c.FullPath())
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		start := time.Now()

		c.Next()

		if ctx.Err() != context.DeadlineExceeded {
			return
		}

		logger.FromContext(ctx).Warn("Request timed out",
			zap.Duration("timeout", timeout),
			zap.Duration("duration", time.Since(start)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path))

		if !c.Writer.Written() {
			response.Error(c, http.StatusGatewayTimeout, "REQUEST_TIMEOUT", "Request timeout")
		}
		c.Abort()
	}
}

func (tm *TimeoutMiddleware) timeoutFor(route string) time.Duration {
	if timeout, ok := tm.config.Overrides[route]; ok {
		return timeout
	}
	return tm.config.DefaultTimeout
}
