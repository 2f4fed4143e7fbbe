// Package monitoring - promexporter.go exposes Prometheus instruments
// alongside the cheap in-process MetricsCollector counters, for
// multi-instance deployments where a single process's atomic counters
// aren't enough.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromCollector holds the real Prometheus instruments the HTTP
// front-end updates per request.
type PromCollector struct {
	RequestsTotal    *prometheus.CounterVec
	TranslationTotal *prometheus.CounterVec
	UpstreamLatency  *prometheus.HistogramVec
	ReasoningCache   *prometheus.GaugeVec
	registry         *prometheus.Registry
}

// NewPromCollector registers a fresh set of instruments on a private
// registry (never the global default, so tests can create several
// without colliding).
func NewPromCollector() *PromCollector {
	reg := prometheus.NewRegistry()

	pc := &PromCollector{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmproxy_requests_total",
			Help: "Total chat requests handled by the HTTP front-end, by request path (route label) and outcome.",
		}, []string{"route", "outcome"}),
		TranslationTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llmproxy_translations_total",
			Help: "Total protocol translations performed, by direction.",
		}, []string{"direction"}),
		UpstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llmproxy_upstream_latency_seconds",
			Help:    "Chat request latency in seconds as measured by the HTTP front-end (including the upstream call), by request path (route label).",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		ReasoningCache: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "llmproxy_reasoning_cache_entries",
			Help: "Current number of entries held by the reasoning cache, across all tokens.",
		}, []string{}),
		registry: reg,
	}

	reg.MustRegister(pc.RequestsTotal, pc.TranslationTotal, pc.UpstreamLatency, pc.ReasoningCache)
	return pc
}

// Handler returns the /metrics exposition handler for this collector's
// private registry.
func (pc *PromCollector) Handler() http.Handler {
	return promhttp.HandlerFor(pc.registry, promhttp.HandlerOpts{})
}

// CountTranslation increments the translation counter for a given
// direction (e.g. "anthropic_to_openai"). Satisfies the proxy
// package's translationCounter interface without it importing
// monitoring directly.
func (pc *PromCollector) CountTranslation(direction string) {
	pc.TranslationTotal.WithLabelValues(direction).Inc()
}
