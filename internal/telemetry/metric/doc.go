// Package metric provides Prometheus metrics for ussal.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, typed recorders and HTTP handler
//   - collector.go: custom collector for build and uptime information
//
// Metrics include:
//
//   - Job session and job outcome counters
//   - Authentication results
//   - Certificate expiry and renewal alerts
//   - HTTP request latency histograms
//
// Metrics are exposed at /metrics in Prometheus format.
package metric
