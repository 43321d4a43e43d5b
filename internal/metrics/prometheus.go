// Package metrics provides Prometheus metrics for hnmigrate.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "hnmigrate"

// Outcomes of a backups fetch.
const (
	OutcomeOK      = "ok"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// PrometheusMetrics holds the registered collectors. A nil *PrometheusMetrics
// is valid and records nothing.
type PrometheusMetrics struct {
	RewriteReplacements prometheus.Counter
	RewriteFallbacks    *prometheus.CounterVec
	Imports             *prometheus.CounterVec
	BackupFetches       *prometheus.CounterVec
	ProxyRequests       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
}

// NewPrometheusMetrics creates the collectors and registers them on reg.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		RewriteReplacements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rewrite_replacements_total",
			Help:      "Service identifiers replaced by rewrites.",
		}),
		RewriteFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "rewrite_fallbacks_total",
			Help:      "Rewrites that fell back to the serviceGuids object, by service type.",
		}, []string{"type"}),
		Imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "imports_total",
			Help:      "Imports submitted to gateways, by result.",
		}, []string{"result"}),
		BackupFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "backup_fetches_total",
			Help:      "Backup list fetches, by outcome.",
		}, []string{"outcome"}),
		ProxyRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "proxy_requests_total",
			Help:      "Requests forwarded by the local proxy, by upstream status.",
		}, []string{"status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Local server request latency, by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	for _, c := range []prometheus.Collector{
		m.RewriteReplacements,
		m.RewriteFallbacks,
		m.Imports,
		m.BackupFetches,
		m.ProxyRequests,
		m.RequestDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordRewrite counts replacements and fallback service types of one rewrite.
func (m *PrometheusMetrics) RecordRewrite(replacements int, fallbackTypes []string) {
	if m == nil {
		return
	}
	m.RewriteReplacements.Add(float64(replacements))
	for _, t := range fallbackTypes {
		m.RewriteFallbacks.WithLabelValues(t).Inc()
	}
}

// RecordImport counts one submitted import.
func (m *PrometheusMetrics) RecordImport(success bool) {
	if m == nil {
		return
	}
	result := "failed"
	if success {
		result = "success"
	}
	m.Imports.WithLabelValues(result).Inc()
}

// RecordBackupFetch counts one backups fetch with an Outcome* value.
func (m *PrometheusMetrics) RecordBackupFetch(outcome string) {
	if m == nil {
		return
	}
	m.BackupFetches.WithLabelValues(outcome).Inc()
}

// RecordProxy counts one proxied request. Status 0 means the upstream was
// unreachable.
func (m *PrometheusMetrics) RecordProxy(status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.ProxyRequests.WithLabelValues(label).Inc()
}

// ObserveRequest records the latency of one local server request.
func (m *PrometheusMetrics) ObserveRequest(route string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(route).Observe(seconds)
}
