// Package monitoring provides Prometheus metrics for the workspace manager.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// Session metrics
	SessionsActive *prometheus.GaugeVec
	SessionsOpened *prometheus.CounterVec
	SessionsClosed *prometheus.CounterVec

	// Host call metrics
	HostCalls  *prometheus.CounterVec
	HostErrors *prometheus.CounterVec

	// PTY bridge metrics
	PollTicks   prometheus.Counter
	OutputBytes prometheus.Counter

	// Overlay surface metrics
	SurfacesLive prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	Uptime    prometheus.Gauge
	startTime time.Time

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector on its own registry, so tests can
// construct collectors without duplicate registration panics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		startTime: time.Now(),
		registry:  reg,

		SessionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "workspace_sessions_active",
				Help: "Number of live workspace sessions by kind",
			},
			[]string{"kind"},
		),
		SessionsOpened: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_sessions_opened_total",
				Help: "Total sessions created by kind",
			},
			[]string{"kind"},
		),
		SessionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_sessions_closed_total",
				Help: "Total sessions closed by kind",
			},
			[]string{"kind"},
		),
		HostCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_host_calls_total",
				Help: "Total host process calls by operation",
			},
			[]string{"op"},
		),
		HostErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_host_errors_total",
				Help: "Total failed host process calls by operation",
			},
			[]string{"op"},
		),
		PollTicks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "workspace_terminal_poll_ticks_total",
				Help: "Total terminal output poll ticks",
			},
		),
		OutputBytes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "workspace_terminal_output_bytes_total",
				Help: "Total terminal output bytes written to screen buffers",
			},
		),
		SurfacesLive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspace_surfaces_live",
				Help: "Number of created, undisposed overlay surfaces",
			},
		),
		WSConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspace_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workspace_http_requests_total",
				Help: "Total HTTP requests by method, route and status",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workspace_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		Uptime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workspace_uptime_seconds",
				Help: "Daemon uptime in seconds",
			},
		),
	}

	reg.MustRegister(
		m.SessionsActive,
		m.SessionsOpened,
		m.SessionsClosed,
		m.HostCalls,
		m.HostErrors,
		m.PollTicks,
		m.OutputBytes,
		m.SurfacesLive,
		m.WSConnections,
		m.HTTPRequests,
		m.HTTPDuration,
		m.Uptime,
	)

	return m
}

// Registry returns the underlying Prometheus registry for the /metrics
// handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordHostCall records a host call and, when err is non-nil, its failure.
func (m *Metrics) RecordHostCall(op string, err error) {
	m.HostCalls.WithLabelValues(op).Inc()
	if err != nil {
		m.HostErrors.WithLabelValues(op).Inc()
	}
}
