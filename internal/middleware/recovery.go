package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"streamchat-backend/pkg/logger"
	"streamchat-backend/pkg/response"
)

// Recovery recovers from panics and returns 500 error
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(c.Request.Context()).Error("Panic recovered",
					zap.String("panic", fmt.Sprintf("%v", err)),
					zap.String("path", c.Request.URL.Path),
					zap.ByteString("stack", debug.Stack()))

				if !c.Writer.Written() {
					response.InternalError(c, "Internal server error")
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}
