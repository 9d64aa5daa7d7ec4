// README: Access log middleware.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"dispatch/internal/logger"
)

func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, logger.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= 500 {
			logger.Warn("http request", fields...)
			return
		}
		logger.Info("http request", fields...)
	}
}
