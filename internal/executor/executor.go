package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/protocol"
	"github.com/yndnr/ussal-go/internal/telemetry/logger"
	"github.com/yndnr/ussal-go/internal/telemetry/metric"
)

// Config holds executor limits.
type Config struct {
	// DefaultTimeout applies when a job requests none.
	DefaultTimeout time.Duration

	// MaxTimeout caps any requested timeout.
	MaxTimeout time.Duration

	// KillGrace is the time between SIGTERM and SIGKILL.
	KillGrace time.Duration

	// ChunkSize is the largest output chunk forwarded at once.
	ChunkSize int

	// MaxOutputBytes caps combined stdout and stderr. Zero means no cap.
	MaxOutputBytes int64

	// MaxConcurrent caps simultaneously running workloads. It should not be
	// below the session cap, or a session may be refused a slot.
	MaxConcurrent int

	// Path is the PATH given to workloads.
	Path string
}

// DefaultMaxConcurrent matches the default session cap, so every
// admitted session can run its job.
const DefaultMaxConcurrent = 64

// DefaultConfig returns default executor limits.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Minute,
		MaxTimeout:     2 * time.Hour,
		KillGrace:      5 * time.Second,
		ChunkSize:      32 * 1024,
		MaxOutputBytes: 64 << 20,
		MaxConcurrent:  DefaultMaxConcurrent,
		Path:           DefaultPath,
	}
}

// Executor runs validated jobs through a Spawner as a fixed sandbox identity.
type Executor struct {
	spawner Spawner
	target  domain.Identity
	cfg     Config
	slots   chan struct{}

	unavailable atomic.Pointer[domain.DomainError]

	logger  *slog.Logger
	metrics *metric.Registry
}

// New creates an Executor.
func New(spawner Spawner, target domain.Identity, cfg Config, logger *slog.Logger, metrics *metric.Registry) *Executor {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = def.KillGrace
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		spawner: spawner,
		target:  target,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		logger:  logger,
		metrics: metrics,
	}
	metrics.SetExecutorHealthy(true)
	return e
}

// MarkUnavailable makes every subsequent Execute fail with
// ErrPrivilegeUnavailable. Used when preflight fails.
func (e *Executor) MarkUnavailable(cause error) {
	e.unavailable.Store(domain.ErrPrivilegeUnavailable.WithCause(cause))
	e.metrics.SetExecutorHealthy(false)
}

// Available returns nil if jobs can run, or the reason they cannot.
func (e *Executor) Available() error {
	if err := e.unavailable.Load(); err != nil {
		return err
	}
	return nil
}

// Running returns the number of workloads in flight.
func (e *Executor) Running() int {
	return len(e.slots)
}

// Capacity returns the concurrency limit.
func (e *Executor) Capacity() int {
	return cap(e.slots)
}

// Execute starts spec and returns its handle.
//
// Cancelling ctx terminates the workload; the handle then reports
// ReasonCancelled. Execute fails fast when the executor is unavailable or
// full; it never queues.
func (e *Executor) Execute(ctx context.Context, spec *domain.JobSpec) (*Handle, error) {
	if err := e.Available(); err != nil {
		e.metrics.JobRejected(string(domain.ReasonPrivilegeUnavail))
		return nil, err
	}
	log := e.logger
	if id := logger.SessionIDFromContext(ctx); id != "" {
		log = log.With("session_id", id)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	select {
	case e.slots <- struct{}{}:
	default:
		e.metrics.JobRejected(string(domain.ReasonCapacity))
		return nil, domain.ErrCapacity
	}

	timeout := spec.EffectiveTimeout(e.cfg.DefaultTimeout, e.cfg.MaxTimeout)
	h := newHandle(ctx, e.cfg.ChunkSize, e.cfg.MaxOutputBytes, e.metrics)

	env := append([]string{"PATH=" + e.cfg.Path}, spec.Environ()...)
	proc, err := e.spawner.SpawnAs(ctx, e.target, Command{
		Argv:   spec.Argv(),
		Env:    env,
		Stdout: h.writer(protocol.Stdout),
		Stderr: h.writer(protocol.Stderr),
	})
	if err != nil {
		<-e.slots
		reason := domain.GetReason(err, domain.ReasonSpawnFailed)
		e.metrics.JobRejected(string(reason))
		log.Warn("workload spawn failed", "command", spec.Command, "reason", reason, "error", err)
		if domain.IsDomainError(err, "") {
			return nil, err
		}
		return nil, domain.ErrSpawnFailed.WithCause(err)
	}

	h.pid = proc.Pid()
	e.metrics.JobStarted()
	log.Info("workload started",
		"pgid", h.pid,
		"command", spec.Command,
		"args", len(spec.Args),
		"timeout", timeout,
	)

	go e.supervise(ctx, h, proc, timeout, log)
	return h, nil
}

var errProcessSurvived = errors.New("process group did not exit after SIGKILL")

type waitResult struct {
	code int
	err  error
}

// supervise waits for the workload and enforces its limits.
func (e *Executor) supervise(ctx context.Context, h *Handle, proc Process, timeout time.Duration, log *slog.Logger) {
	waitCh := make(chan waitResult, 1)
	go func() {
		code, err := proc.Wait()
		waitCh <- waitResult{code, err}
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var (
		w      waitResult
		reason domain.Reason
	)
	select {
	case w = <-waitCh:
	case <-timer:
		reason = domain.ReasonTimeout
		w = e.terminate(h, proc, waitCh, log)
	case <-ctx.Done():
		reason = domain.ReasonCancelled
		w = e.terminate(h, proc, waitCh, log)
	case <-h.limitHit:
		reason = domain.ReasonOutputLimit
		w = e.terminate(h, proc, waitCh, log)
	}

	// Nothing the workload started outlives it, including descendants that
	// left the process group. They are not part of the result.
	if proc.Alive() {
		if err := proc.Kill(); err != nil {
			log.Warn("failed to reap process group", "pgid", h.pid, "error", err)
		}
	}

	if reason == domain.ReasonNone && h.limitExceeded() {
		reason = domain.ReasonOutputLimit
	}
	if w.err != nil && reason == domain.ReasonNone {
		log.Warn("workload wait failed", "pgid", h.pid, "error", w.err)
		reason = domain.ReasonSpawnFailed
	}
	if reason == domain.ReasonNone && w.code != 0 {
		reason = domain.ReasonExitStatus
	}
	code := w.code
	if reason != domain.ReasonNone && reason != domain.ReasonExitStatus && code == 0 {
		code = -1
	}

	res := domain.JobResult{
		ExitCode: code,
		Reason:   reason,
		Duration: time.Since(h.startedAt),
	}
	e.metrics.JobFinished(string(reason), res.Duration.Seconds())
	log.Info("workload finished",
		"pgid", h.pid,
		"exit_code", res.ExitCode,
		"reason", reason,
		"duration", res.Duration,
		"output_bytes", h.total.Load(),
	)

	// Free the slot before publishing the result so a caller that saw the
	// result can start the next job.
	<-e.slots
	h.finish(res)
}

// terminate asks the group to exit, then kills it after the grace period.
func (e *Executor) terminate(h *Handle, proc Process, waitCh <-chan waitResult, log *slog.Logger) waitResult {
	if err := proc.Signal(unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
		log.Debug("SIGTERM to process group failed", "pgid", h.pid, "error", err)
	}

	grace := time.NewTimer(e.cfg.KillGrace)
	defer grace.Stop()

	select {
	case w := <-waitCh:
		return w
	case <-grace.C:
	}

	log.Warn("workload ignored SIGTERM, killing", "pgid", h.pid)
	if err := proc.Kill(); err != nil {
		log.Error("failed to kill process group", "pgid", h.pid, "error", err)
	}

	grace.Reset(e.cfg.KillGrace)
	select {
	case w := <-waitCh:
		return w
	case <-grace.C:
		log.Error("process group survived SIGKILL", "pgid", h.pid)
		return waitResult{code: -1, err: errProcessSurvived}
	}
}

// Shutdown waits for in-flight workloads to finish and takes every slot, so
// no job starts afterwards.
func (e *Executor) Shutdown(ctx context.Context) error {
	for i := 0; i < cap(e.slots); i++ {
		select {
		case e.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
