package shutdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type hook struct {
	name string
	fn   func(context.Context) error
}

// Handler runs shutdown hooks on termination and reload hooks on SIGHUP.
type Handler struct {
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	hooks   []hook
	reloads []hook
	done    chan struct{}
}

// NewHandler creates a new shutdown handler. Hooks share a deadline of timeout.
func NewHandler(timeout time.Duration, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		timeout: timeout,
		logger:  logger,
		hooks:   make([]hook, 0),
		done:    make(chan struct{}),
	}
}

// OnShutdown registers a shutdown hook.
// Hooks are called in reverse order of registration.
func (h *Handler) OnShutdown(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// OnReload registers a hook run on SIGHUP, in registration order.
func (h *Handler) OnReload(name string, fn func(context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reloads = append(h.reloads, hook{name: name, fn: fn})
}

// Wait blocks until SIGINT, SIGTERM or ctx is done, then runs the shutdown
// hooks. SIGHUP received meanwhile runs the reload hooks. The returned error
// joins every hook failure.
func (h *Handler) Wait(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

wait:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				h.Reload(ctx)
				continue
			}
			h.logger.Info("shutdown signal received", "signal", sig.String())
			break wait
		case <-ctx.Done():
			h.logger.Info("shutdown requested", "reason", context.Cause(ctx))
			break wait
		}
	}

	return h.Shutdown()
}

// Reload runs the reload hooks. Failures are logged and do not stop later hooks.
func (h *Handler) Reload(ctx context.Context) {
	h.mu.Lock()
	reloads := make([]hook, len(h.reloads))
	copy(reloads, h.reloads)
	h.mu.Unlock()

	for _, r := range reloads {
		if err := r.fn(ctx); err != nil {
			h.logger.Error("reload failed", "hook", r.name, "error", err)
			continue
		}
		h.logger.Info("reloaded", "hook", r.name)
	}
}

// Shutdown runs the shutdown hooks once under the handler timeout.
func (h *Handler) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	h.mu.Lock()
	hooks := make([]hook, len(h.hooks))
	copy(hooks, h.hooks)
	h.hooks = nil
	h.mu.Unlock()

	var errs []error
	for i := len(hooks) - 1; i >= 0; i-- {
		start := time.Now()
		if err := hooks[i].fn(ctx); err != nil {
			h.logger.Error("shutdown hook failed", "hook", hooks[i].name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", hooks[i].name, err))
			continue
		}
		h.logger.Debug("shutdown hook done", "hook", hooks[i].name, "took", time.Since(start))
	}

	select {
	case <-h.done:
	default:
		close(h.done)
	}
	return errors.Join(errs...)
}

// Done returns a channel that closes when shutdown is complete.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}
