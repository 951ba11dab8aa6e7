package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the per-process HTTP and transport metrics. Chat domain counters live
// in chat_metrics.go on the default registry; Gatherer merges both.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	websocketConnections prometheus.Gauge
	websocketErrorsTotal *prometheus.CounterVec

	rateLimitBlockedTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all HTTP metrics on a fresh registry
func NewMetrics(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: registry,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "HTTP request latency in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "http_requests_in_flight",
				Help:        "Number of HTTP requests currently being processed",
				ConstLabels: labels,
			},
		),
		websocketConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name:        "websocket_connections",
				Help:        "Number of open event websocket connections",
				ConstLabels: labels,
			},
		),
		websocketErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "websocket_errors_total",
				Help:        "Total number of websocket errors",
				ConstLabels: labels,
			},
			[]string{"kind"},
		),
		rateLimitBlockedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "rate_limit_blocked_total",
				Help:        "Total number of requests rejected by the send rate limiter",
				ConstLabels: labels,
			},
			[]string{"endpoint"},
		),
	}
}

// Gatherer returns the process registry merged with the default registry
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{m.registry, prometheus.DefaultGatherer}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments the number of in-flight HTTP requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Inc()
}

// DecrementHTTPRequestsInFlight decrements the number of in-flight HTTP requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	m.httpRequestsInFlight.Dec()
}

// WebSocketOpened tracks a new event socket
func (m *Metrics) WebSocketOpened() {
	m.websocketConnections.Inc()
}

// WebSocketClosed tracks a closed event socket
func (m *Metrics) WebSocketClosed() {
	m.websocketConnections.Dec()
}

// RecordWebSocketError records a websocket failure by kind (upgrade, write, subscribe)
func (m *Metrics) RecordWebSocketError(kind string) {
	m.websocketErrorsTotal.WithLabelValues(kind).Inc()
}

// RecordRateLimitBlocked records a request rejected by the rate limiter
func (m *Metrics) RecordRateLimitBlocked(endpoint string) {
	m.rateLimitBlockedTotal.WithLabelValues(endpoint).Inc()
}
