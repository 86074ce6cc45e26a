// Package metrics defines the Prometheus collectors used by the portal and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the portal.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	AsksTotal            *prometheus.CounterVec
	AskLatency           *prometheus.HistogramVec
	MatchedSections      prometheus.Histogram
	AnswerCacheHits      prometheus.Counter
	AnswerCacheMisses    prometheus.Counter
	DocumentRefreshes    *prometheus.CounterVec
	DocumentSections     prometheus.Gauge
	RateLimitRejections  prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
	AnalyticsDropped     prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry registers the collectors with reg and serves them from g.
func NewWithRegistry(reg prometheus.Registerer, g prometheus.Gatherer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, route pattern and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15, 30},
			},
			[]string{"method", "route"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		AsksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_asks_total",
				Help: "Questions asked by mode (quick, explain) and outcome (matched, no_match, degraded, error).",
			},
			[]string{"mode", "outcome"},
		),
		AskLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "portal_ask_latency_seconds",
				Help:    "End-to-end latency of answering a question.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"mode"},
		),
		MatchedSections: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "portal_matched_sections",
				Help:    "Number of sections returned per question.",
				Buckets: []float64{0, 1, 2, 3, 4, 5, 10},
			},
		),
		AnswerCacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_answer_cache_hits_total",
				Help: "Explanations served from the answer cache.",
			},
		),
		AnswerCacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_answer_cache_misses_total",
				Help: "Explanations that required a model call.",
			},
		),
		DocumentRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "portal_document_refreshes_total",
				Help: "Agreement refresh attempts by outcome (fetched, failed, stale).",
			},
			[]string{"outcome"},
		),
		DocumentSections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "portal_document_sections",
				Help: "Number of sections in the current agreement snapshot.",
			},
		),
		RateLimitRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_rate_limit_rejections_total",
				Help: "Requests rejected by the per-client rate limit.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		AnalyticsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "portal_analytics_events_dropped_total",
				Help: "Analytics events dropped because the collector buffer was full.",
			},
		),
		gatherer: g,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.AsksTotal,
		m.AskLatency,
		m.MatchedSections,
		m.AnswerCacheHits,
		m.AnswerCacheMisses,
		m.DocumentRefreshes,
		m.DocumentSections,
		m.RateLimitRejections,
		m.CircuitBreakerState,
		m.AnalyticsDropped,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
