package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// RPC metrics
	RPCRequests *prometheus.CounterVec

	// Tool metrics
	ToolCalls    *prometheus.CounterVec
	ToolDuration *prometheus.HistogramVec

	// Export metrics
	SpansExported  *prometheus.CounterVec
	SpansDropped   *prometheus.CounterVec
	ExportFailures *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a new metrics collector on its own registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry:  registry,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nimbus_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		RPCRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_rpc_requests_total",
				Help: "Total number of JSON-RPC requests by method and outcome",
			},
			[]string{"method", "outcome"},
		),

		ToolCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_tool_calls_total",
				Help: "Total number of tool invocations by tool and status",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nimbus_tool_duration_seconds",
				Help:    "Tool execution duration in seconds",
				Buckets: []float64{.0001, .001, .01, .05, .1, .5, 1, 5},
			},
			[]string{"tool", "status"},
		),

		SpansExported: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_spans_exported_total",
				Help: "Total number of spans delivered to a sink",
			},
			[]string{"sink"},
		),
		SpansDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_spans_dropped_total",
				Help: "Total number of spans dropped before delivery",
			},
			[]string{"reason"},
		),
		ExportFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nimbus_export_failures_total",
				Help: "Total number of failed batch transmissions",
			},
			[]string{"sink"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "nimbus_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler returns the HTTP handler serving this collector's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordRPCRequest records one dispatched JSON-RPC request.
func (m *Metrics) RecordRPCRequest(method, outcome string) {
	m.RPCRequests.WithLabelValues(method, outcome).Inc()
}

// RecordToolCall records one tool invocation.
func (m *Metrics) RecordToolCall(tool, status string) {
	m.ToolCalls.WithLabelValues(tool, status).Inc()
}

// RecordToolDuration records tool execution time.
func (m *Metrics) RecordToolDuration(tool, status string, duration time.Duration) {
	m.ToolDuration.WithLabelValues(tool, status).Observe(duration.Seconds())
}

// RecordSpansExported counts spans delivered to a sink.
func (m *Metrics) RecordSpansExported(sink string, n int) {
	m.SpansExported.WithLabelValues(sink).Add(float64(n))
}

// RecordSpansDropped counts spans dropped before delivery.
func (m *Metrics) RecordSpansDropped(reason string, n int) {
	m.SpansDropped.WithLabelValues(reason).Add(float64(n))
}

// RecordExportFailure counts one failed batch transmission.
func (m *Metrics) RecordExportFailure(sink string) {
	m.ExportFailures.WithLabelValues(sink).Inc()
}
