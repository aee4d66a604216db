// Package monitoring provides Prometheus metrics for the RPC server:
// HTTP request counters and latency histograms, per-tool call counters,
// and span export/drop counters. Metrics live on a private registry so
// multiple instances (e.g. in tests) never collide; expose them with
// Handler() on /metrics.
package monitoring
