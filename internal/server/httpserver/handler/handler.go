package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yndnr/ussal-go/internal/infra/tlscert"
	"github.com/yndnr/ussal-go/internal/server/jobsession"
	"github.com/yndnr/ussal-go/internal/telemetry/logger"
)

// SessionSource reports live job sessions.
type SessionSource interface {
	Active() int
	MaxSessions() int
	Sessions() []jobsession.Info
}

// ExecutorSource reports the local executor.
type ExecutorSource interface {
	Running() int
	Capacity() int
	Available() error
}

// CertificateSource reports the served certificate.
type CertificateSource interface {
	Status() tlscert.Status
}

// Config wires the status sources. Executor is nil when no local executor
// is wired and Certificates is nil when TLS is disabled.
type Config struct {
	Mode         string
	StartedAt    time.Time
	Sessions     SessionSource
	Executor     ExecutorSource
	Certificates CertificateSource
}

// Handler serves the read-only status endpoints.
type Handler struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
	mux    *http.ServeMux
}

// New creates a Handler.
func New(cfg Config, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	h := &Handler{
		cfg:    cfg,
		logger: log,
		now:    time.Now,
		mux:    http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /{$}", h.handleIndex)
	h.mux.HandleFunc("GET /status", h.handleStatus)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /ready", h.handleReady)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := getRequestID(r)
	response := NewResponse(requestID, data)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := getRequestID(r)
	response := NewErrorResponse(requestID, code, message, details)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.Header().Set("X-Request-ID", requestID)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// getRequestID prefers the ID assigned by the RequestID middleware and falls
// back to the client header.
func getRequestID(r *http.Request) string {
	if id := logger.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return r.Header.Get("X-Request-ID")
}
