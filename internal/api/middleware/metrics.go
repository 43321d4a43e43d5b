package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/omniaweb/hnmigrate/internal/metrics"
)

// RequestMetrics records request latency per matched route. Unmatched
// requests are grouped under "unmatched".
func RequestMetrics(m *metrics.PrometheusMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(route, time.Since(start).Seconds())
	}
}
