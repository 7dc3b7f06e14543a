package jobsession

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/executor"
	"github.com/yndnr/ussal-go/internal/telemetry/logger"
	"github.com/yndnr/ussal-go/internal/telemetry/metric"
	"github.com/yndnr/ussal-go/pkg/cmap"
)

// errShuttingDown cancels every session when the handler shuts down.
var errShuttingDown = errors.New("server shutting down")

// Authenticator validates session credentials.
type Authenticator interface {
	Validate(ctx context.Context, tok domain.AuthToken, clientIP string) (domain.AuthDecision, error)
}

// Runner starts workloads.
type Runner interface {
	Execute(ctx context.Context, spec *domain.JobSpec) (*executor.Handle, error)
}

// Config holds session limits.
type Config struct {
	// MaxSessions caps concurrent sessions. Upgrades beyond it get 503.
	MaxSessions int

	// AuthTimeout bounds the wait for the authenticate message.
	AuthTimeout time.Duration

	// WriteTimeout bounds every frame write. A client that cannot accept
	// a frame in time is disconnected.
	WriteTimeout time.Duration

	// PingInterval is the keepalive period. Zero disables pings and the
	// idle read deadline.
	PingInterval time.Duration
}

// DefaultConfig returns default session limits.
func DefaultConfig() Config {
	return Config{
		MaxSessions:  64,
		AuthTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		PingInterval: 20 * time.Second,
	}
}

// Info describes a live session for the status endpoint.
type Info struct {
	ID         string    `json:"id" yaml:"id"`
	RemoteAddr string    `json:"remote_addr" yaml:"remote_addr"`
	State      string    `json:"state" yaml:"state"`
	Command    string    `json:"command,omitempty" yaml:"command,omitempty"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
}

// Handler upgrades /run_job requests and runs one session per connection.
type Handler struct {
	cfg      Config
	auth     Authenticator
	runner   Runner
	upgrader websocket.Upgrader

	sessions *cmap.Map[*session]
	active   atomic.Int64

	baseCtx    context.Context
	baseCancel context.CancelCauseFunc

	logger  *slog.Logger
	metrics *metric.Registry
}

// NewHandler creates a session handler.
func NewHandler(auth Authenticator, runner Runner, cfg Config, log *slog.Logger, metrics *metric.Registry) *Handler {
	def := DefaultConfig()
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = def.MaxSessions
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = def.AuthTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	return &Handler{
		cfg:    cfg,
		auth:   auth,
		runner: runner,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: cfg.AuthTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  32 * 1024,
			// Clients are CLIs, not browsers; the token is the credential.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions:   cmap.New[*session](),
		baseCtx:    ctx,
		baseCancel: cancel,
		logger:     log,
		metrics:    metrics,
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.baseCtx.Err() != nil {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	}
	if n := h.active.Add(1); n > int64(h.cfg.MaxSessions) {
		h.active.Add(-1)
		h.metrics.SessionRefused()
		h.logger.Warn("session refused", "reason", domain.ErrTooManySessions.Message, "max_sessions", h.cfg.MaxSessions)
		w.Header().Set("Retry-After", "5")
		w.Header().Set("X-Error-Code", domain.ErrTooManySessions.Code)
		http.Error(w, domain.ErrTooManySessions.Message, http.StatusServiceUnavailable)
		return
	}
	defer h.active.Add(-1)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id, err := domain.GenerateSessionID()
	if err != nil {
		h.logger.Error("session id generation failed", "error", err)
		conn.Close()
		return
	}

	ctx, cancel := context.WithCancelCause(h.baseCtx)
	defer cancel(nil)
	ctx = logger.WithSessionID(ctx, id)
	if rid := logger.RequestIDFromContext(r.Context()); rid != "" {
		ctx = logger.WithRequestID(ctx, rid)
	}
	ctx = logger.WithLogger(ctx, h.logger.With("remote", r.RemoteAddr))
	log := logger.L(ctx)

	s := newSession(id, conn, clientIP(r), h, log, cancel)
	h.sessions.Set(id, s)
	defer h.sessions.Delete(id)

	h.metrics.SessionOpened()
	outcome := s.run(ctx)
	h.metrics.SessionClosed(outcome)
}

// Active returns the number of sessions holding a slot.
func (h *Handler) Active() int {
	return int(h.active.Load())
}

// MaxSessions returns the session cap.
func (h *Handler) MaxSessions() int {
	return h.cfg.MaxSessions
}

// Sessions returns a snapshot of live sessions ordered by start time.
func (h *Handler) Sessions() []Info {
	var out []Info
	for _, s := range h.sessions.Values() {
		out = append(out, s.info())
	}
	slices.SortFunc(out, func(a, b Info) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out
}

// Shutdown cancels every session, which kills their workloads, and waits
// until all sessions have ended or ctx is done. New upgrades are refused.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.baseCancel(errShuttingDown)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for h.active.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// clientIP keys the authentication limiter. Forwarding headers are ignored
// because the listener is exposed directly.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
