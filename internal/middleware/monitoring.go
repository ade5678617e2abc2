package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"agencysite/backend/internal/monitoring"
)

// Monitoring HTTP 请求指标采集中间件
func Monitoring(metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		metrics.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		metrics.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())

		if c.Writer.Status() >= 500 {
			metrics.ErrorsTotal.WithLabelValues("http").Inc()
		}
	}
}
