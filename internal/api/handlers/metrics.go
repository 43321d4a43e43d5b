package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterMetricsRoute serves the collectors of gatherer at GET /metrics in
// Prometheus exposition format.
func RegisterMetricsRoute(r *gin.Engine, gatherer prometheus.Gatherer) {
	handler := promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	r.GET("/metrics", gin.WrapH(handler))
}
