package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/shipchange-gin/internal/logger"
	"github.com/mautops/shipchange-gin/internal/metrics"
	"github.com/sirupsen/logrus"
)

// RequestLogMiddleware 请求日志中间件
func RequestLogMiddleware(log *logrus.Logger) gin.HandlerFunc {
	log = logger.OrDefault(log)

	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		// 指标按路由模板聚合，未匹配路由统一归类
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordAPIRequest(method, route, status, latency.Seconds())

		entry := log.WithFields(logrus.Fields{
			"request_id": c.GetString(requestIDKey),
			"method":     method,
			"path":       c.Request.URL.Path,
			"status":     status,
			"latency":    latency.String(),
			"ip":         c.ClientIP(),
		})
		if username := c.GetString("username"); username != "" {
			entry = entry.WithField("user", username)
		}

		if status >= 500 {
			entry.Error("API request")
		} else if status >= 400 {
			entry.Warn("API request")
		} else {
			entry.Info("API request")
		}
	}
}
