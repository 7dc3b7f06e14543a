package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/yndnr/ussal-go/internal/telemetry/metric"
)

// RouterConfig holds configuration for the HTTP router.
type RouterConfig struct {
	// Sessions upgrades GET /run_job into a job session.
	Sessions http.Handler

	// Status serves /, /status, /health and /ready.
	Status http.Handler

	// Metrics backs /metrics and the request counters.
	Metrics *metric.Registry

	// Logger for access and panic logging.
	Logger *slog.Logger

	// ConnRate is the per-IP request rate (requests/second); zero disables
	// limiting.
	ConnRate float64

	// ConnBurst is the per-IP burst.
	ConnBurst int

	// EnableAudit enables access logging for all requests.
	EnableAudit bool
}

// DefaultRouterConfig returns default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		ConnRate:    5,
		ConnBurst:   20,
		EnableAudit: true,
	}
}

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(cfg *RouterConfig) http.Handler {
	if cfg == nil {
		cfg = DefaultRouterConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	// Order: Recover -> RequestID -> Audit -> RateLimit -> Handler
	middlewares := []Middleware{Recover(log), RequestID()}
	if cfg.EnableAudit {
		middlewares = append(middlewares, Audit(log, cfg.Metrics))
	}
	middlewares = append(middlewares, RateLimit(cfg.ConnRate, cfg.ConnBurst))

	mux := http.NewServeMux()

	if cfg.Sessions != nil {
		mux.Handle("GET /run_job", Chain(cfg.Sessions, middlewares...))
	}

	if cfg.Status != nil {
		status := Chain(cfg.Status, middlewares...)
		mux.Handle("GET /{$}", status)
		mux.Handle("GET /status", status)
		mux.Handle("GET /health", status)
		mux.Handle("GET /ready", status)
	}

	// Scrapers are not rate limited.
	var metrics http.Handler
	if cfg.Metrics != nil {
		metrics = cfg.Metrics.Handler()
	} else {
		metrics = metric.Handler()
	}
	mux.Handle("GET /metrics", Chain(metrics, Recover(log), RequestID()))

	return mux
}
