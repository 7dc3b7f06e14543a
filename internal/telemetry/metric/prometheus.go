// Package metric provides Prometheus metrics for ussal.
package metric

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ussal"

// Registry holds all application metrics.
//
// All recorder methods are safe on a nil *Registry, so components can run
// without metrics in tests.
type Registry struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionsRefused prometheus.Counter

	// Auth metrics
	AuthAttempts *prometheus.CounterVec

	// Job metrics
	JobsRunning     prometheus.Gauge
	JobsTotal       *prometheus.CounterVec
	JobDuration     prometheus.Histogram
	JobOutputBytes  prometheus.Counter
	ExecutorHealthy prometheus.Gauge

	// Certificate metrics
	CertNotAfter        prometheus.Gauge
	CertState           prometheus.Gauge
	CertRenewals        *prometheus.CounterVec
	CertRenewalFailures prometheus.Counter
	CertAlert           prometheus.Gauge

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

var (
	globalRegistry *Registry
	globalOnce     sync.Once
)

// Global returns the process-wide registry.
func Global() *Registry {
	globalOnce.Do(func() {
		globalRegistry = NewRegistry()
	})
	return globalRegistry
}

// Handler returns the /metrics handler of the global registry.
func Handler() http.Handler {
	return Global().Handler()
}

// NewRegistry creates a registry with Go runtime and process collectors
// plus all ussal metrics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		registry: reg,

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of open job sessions",
		}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Job sessions by final outcome",
		}, []string{"outcome"}),
		SessionsRefused: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_refused_total",
			Help:      "Session upgrades refused because the session cap was reached",
		}),

		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication attempts by result",
		}, []string{"result"}),

		JobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Number of workloads currently executing",
		}),
		JobsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Finished jobs by reason (ok for success)",
		}, []string{"reason"}),
		JobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Workload wall time",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		JobOutputBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_output_bytes_total",
			Help:      "Bytes of workload output forwarded to clients",
		}),
		ExecutorHealthy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "executor_privilege_available",
			Help:      "1 if the sandbox delegation passed preflight",
		}),

		CertNotAfter: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cert_not_after_timestamp_seconds",
			Help:      "Expiry of the certificate currently served",
		}),
		CertState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cert_state",
			Help:      "Certificate manager state (0 uninitialized .. 5 invalid)",
		}),
		CertRenewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cert_issuances_total",
			Help:      "Certificate issuance attempts by result",
		}, []string{"result"}),
		CertRenewalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cert_renewal_failures_total",
			Help:      "Renewal rounds that exhausted their retries",
		}),
		CertAlert: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cert_alert",
			Help:      "1 while the served certificate could not be renewed",
		}),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		r.SessionsActive, r.SessionsTotal, r.SessionsRefused,
		r.AuthAttempts,
		r.JobsRunning, r.JobsTotal, r.JobDuration, r.JobOutputBytes, r.ExecutorHealthy,
		r.CertNotAfter, r.CertState, r.CertRenewals, r.CertRenewalFailures, r.CertAlert,
		r.RequestsTotal, r.RequestDuration,
	)

	return r
}

// Prometheus returns the underlying registry for components that register
// their own collectors.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// Register adds a custom collector.
func (r *Registry) Register(c prometheus.Collector) error {
	return r.registry.Register(c)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ============================================================================
// Session recorders
// ============================================================================

// SessionOpened records a new job session.
func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.SessionsActive.Inc()
}

// SessionClosed records the end of a job session with its outcome.
func (r *Registry) SessionClosed(outcome string) {
	if r == nil {
		return
	}
	r.SessionsActive.Dec()
	r.SessionsTotal.WithLabelValues(outcome).Inc()
}

// SessionRefused records an upgrade refused by the session cap.
func (r *Registry) SessionRefused() {
	if r == nil {
		return
	}
	r.SessionsRefused.Inc()
}

// RecordAuth records an authentication attempt result.
func (r *Registry) RecordAuth(result string) {
	if r == nil {
		return
	}
	r.AuthAttempts.WithLabelValues(result).Inc()
}

// ============================================================================
// Job recorders
// ============================================================================

// JobStarted records a workload spawn.
func (r *Registry) JobStarted() {
	if r == nil {
		return
	}
	r.JobsRunning.Inc()
}

// JobFinished records a workload exit.
func (r *Registry) JobFinished(reason string, seconds float64) {
	if r == nil {
		return
	}
	if reason == "" {
		reason = "ok"
	}
	r.JobsRunning.Dec()
	r.JobsTotal.WithLabelValues(reason).Inc()
	r.JobDuration.Observe(seconds)
}

// JobRejected records a job that never started.
func (r *Registry) JobRejected(reason string) {
	if r == nil {
		return
	}
	r.JobsTotal.WithLabelValues(reason).Inc()
}

// AddJobOutput records forwarded output bytes.
func (r *Registry) AddJobOutput(n int) {
	if r == nil {
		return
	}
	r.JobOutputBytes.Add(float64(n))
}

// SetExecutorHealthy records the preflight outcome.
func (r *Registry) SetExecutorHealthy(ok bool) {
	if r == nil {
		return
	}
	r.ExecutorHealthy.Set(boolGauge(ok))
}

// ============================================================================
// Certificate recorders
// ============================================================================

// SetCertificate records the expiry of the newly published certificate.
func (r *Registry) SetCertificate(notAfterUnix float64) {
	if r == nil {
		return
	}
	r.CertNotAfter.Set(notAfterUnix)
}

// SetCertState records the certificate manager state.
func (r *Registry) SetCertState(state int) {
	if r == nil {
		return
	}
	r.CertState.Set(float64(state))
}

// RecordCertIssuance records one issuance attempt.
func (r *Registry) RecordCertIssuance(ok bool) {
	if r == nil {
		return
	}
	if ok {
		r.CertRenewals.WithLabelValues("success").Inc()
		return
	}
	r.CertRenewals.WithLabelValues("failure").Inc()
}

// SetCertAlert raises or clears the renewal alert.
func (r *Registry) SetCertAlert(raised bool) {
	if r == nil {
		return
	}
	if raised {
		r.CertRenewalFailures.Inc()
	}
	r.CertAlert.Set(boolGauge(raised))
}

// ============================================================================
// Request recorders
// ============================================================================

// RecordRequest records one HTTP request.
func (r *Registry) RecordRequest(method, route, status string, seconds float64) {
	if r == nil {
		return
	}
	r.RequestsTotal.WithLabelValues(method, route, status).Inc()
	r.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
