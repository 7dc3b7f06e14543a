package tlscert

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/storage"
	"github.com/yndnr/ussal-go/internal/telemetry/metric"
)

// Default lifecycle settings.
const (
	DefaultRenewBefore          = 30 * 24 * time.Hour
	DefaultCheckInterval        = time.Hour
	DefaultRetryMaxAttempts     = 5
	DefaultRetryInitialInterval = 30 * time.Second
	DefaultRetryMaxInterval     = 10 * time.Minute
)

// Config configures a Manager.
type Config struct {
	Domains []string

	// RenewBefore is the remaining validity below which renewal starts.
	RenewBefore time.Duration

	// CheckInterval is the period of the expiry check in Run.
	CheckInterval time.Duration

	// Bounded retry for one renewal round.
	RetryMaxAttempts     int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration

	// Now is the expiry clock. Defaults to time.Now.
	Now func() time.Time

	// OnAlert is called when a renewal round exhausts its retries.
	OnAlert func(err error, status Status)
}

// DefaultConfig returns the default lifecycle settings for domains.
func DefaultConfig(domains []string) Config {
	return Config{
		Domains:              domains,
		RenewBefore:          DefaultRenewBefore,
		CheckInterval:        DefaultCheckInterval,
		RetryMaxAttempts:     DefaultRetryMaxAttempts,
		RetryInitialInterval: DefaultRetryInitialInterval,
		RetryMaxInterval:     DefaultRetryMaxInterval,
	}
}

// Status is a point-in-time view of the manager for status pages.
type Status struct {
	Phase     Phase     `json:"phase" yaml:"phase"`
	Issuer    string    `json:"issuer" yaml:"issuer"`
	Domains   []string  `json:"domains" yaml:"domains"`
	NotAfter  time.Time `json:"not_after,omitempty" yaml:"not_after,omitempty"`
	IssuedAt  time.Time `json:"issued_at,omitempty" yaml:"issued_at,omitempty"`
	LastError string    `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// Manager owns the served certificate.
//
// The certificate is published with a single atomic store of a fully built
// State. GetCertificate performs one load per handshake.
type Manager struct {
	issuer  Issuer
	store   storage.KV
	cfg     Config
	logger  *slog.Logger
	metrics *metric.Registry

	current atomic.Pointer[State]
	phase   atomic.Int32
	lastErr atomic.Pointer[string]

	// Serializes issuance rounds from Run and Refresh.
	issueMu sync.Mutex
}

// NewManager creates a Manager. store may be nil to disable the cache.
func NewManager(issuer Issuer, store storage.KV, cfg Config, logger *slog.Logger, metrics *metric.Registry) (*Manager, error) {
	if issuer == nil {
		return nil, errors.New("tlscert: issuer is required")
	}
	if len(cfg.Domains) == 0 {
		return nil, errors.New("tlscert: at least one domain is required")
	}
	if cfg.RenewBefore <= 0 {
		cfg.RenewBefore = DefaultRenewBefore
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.RetryMaxAttempts <= 0 {
		cfg.RetryMaxAttempts = DefaultRetryMaxAttempts
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = DefaultRetryInitialInterval
	}
	if cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		cfg.RetryMaxInterval = cfg.RetryInitialInterval
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Domains = slices.Clone(cfg.Domains)
	slices.Sort(cfg.Domains)

	return &Manager{
		issuer:  issuer,
		store:   store,
		cfg:     cfg,
		logger:  logger.With("component", "tlscert"),
		metrics: metrics,
	}, nil
}

// Current returns the published state, or nil before the first publication.
func (m *Manager) Current() *State {
	return m.current.Load()
}

// Phase returns the lifecycle phase.
func (m *Manager) Phase() Phase {
	return Phase(m.phase.Load())
}

// Status returns a snapshot for status reporting.
func (m *Manager) Status() Status {
	s := Status{Phase: m.Phase(), Issuer: m.issuer.Name(), Domains: m.cfg.Domains}
	if st := m.current.Load(); st != nil {
		s.Domains = st.Domains
		s.NotAfter = st.NotAfter
		s.IssuedAt = st.IssuedAt
		s.Issuer = st.Issuer
	}
	if e := m.lastErr.Load(); e != nil {
		s.LastError = *e
	}
	return s
}

// GetCertificate implements tls.Config.GetCertificate. TLS-ALPN-01
// challenge handshakes are answered by the issuer.
func (m *Manager) GetCertificate(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
	if isChallengeHello(hello) {
		if r, ok := m.issuer.(ChallengeResponder); ok {
			if cert, ok := r.ChallengeCertificate(hello.ServerName); ok {
				return cert, nil
			}
		}
		return nil, fmt.Errorf("tlscert: no pending challenge for %q", hello.ServerName)
	}
	st := m.current.Load()
	if st == nil {
		return nil, domain.ErrNoCertificate
	}
	return st.Certificate, nil
}

func isChallengeHello(hello *tls.ClientHelloInfo) bool {
	return len(hello.SupportedProtos) == 1 && hello.SupportedProtos[0] == ALPNProto
}

// TLSConfig returns a server TLS configuration backed by the manager.
func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: m.GetCertificate,
		NextProtos:     []string{"http/1.1", ALPNProto},
	}
}

// Load publishes the cached bundle for the domain set if it is still valid
// and covers every domain. It never contacts the issuer.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		m.setPhase(PhaseIssuing)
		return nil
	}

	data, err := m.store.Get(ctx, cacheKey(m.cfg.Domains))
	if errors.Is(err, storage.ErrKeyNotFound) {
		m.setPhase(PhaseIssuing)
		return nil
	}
	if err != nil {
		m.setPhase(PhaseIssuing)
		return fmt.Errorf("tlscert: load cache: %w", err)
	}

	bundle, err := ParseBundle(data)
	if err == nil {
		var st *State
		if st, err = bundle.State(m.issuer.Name(), time.Time{}); err == nil {
			st.IssuedAt = st.Leaf.NotBefore
			now := m.cfg.Now()
			if st.Remaining(now) <= 0 || !st.Covers(m.cfg.Domains) {
				m.logger.Info("cached certificate unusable", "not_after", st.NotAfter)
				m.setPhase(PhaseIssuing)
				return nil
			}
			m.publish(st)
			m.setPhase(m.phaseFor(st, now))
			m.logger.Info("cached certificate loaded", "not_after", st.NotAfter, "domains", st.Domains)
			return nil
		}
	}
	m.setPhase(PhaseIssuing)
	m.logger.Warn("cached certificate rejected", "error", err)
	return nil
}

// Run keeps the certificate valid until ctx ends. Without a published
// certificate it retries issuance with backoff indefinitely; afterwards it
// checks expiry every CheckInterval and renews inside the renewal window.
func (m *Manager) Run(ctx context.Context) error {
	if m.current.Load() == nil {
		if err := m.initialIssue(ctx); err != nil || ctx.Err() != nil {
			return err
		}
	}

	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		// Errors are logged and alerted inside Check.
		_ = m.Check(ctx)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Manager) initialIssue(ctx context.Context) error {
	m.setPhase(PhaseIssuing)
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.RetryInitialInterval
	b.MaxInterval = m.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0

	err := backoff.RetryNotify(func() error {
		return m.issueOnce(ctx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		m.logger.Error("certificate issuance failed", "error", err, "retry_in", next)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	m.setPhase(PhaseValid)
	return nil
}

// Check evaluates the published certificate against the clock and renews it
// when inside the renewal window. A renewal round retries with bounded
// exponential backoff; on exhaustion the old certificate stays published,
// the phase becomes Expiring (or Invalid once expired) and the alert is
// raised.
func (m *Manager) Check(ctx context.Context) error {
	st := m.current.Load()
	if st == nil {
		return domain.ErrNoCertificate
	}
	now := m.cfg.Now()
	if st.Remaining(now) >= m.cfg.RenewBefore {
		m.setPhase(PhaseValid)
		return nil
	}

	if st.Remaining(now) > 0 {
		m.setPhase(PhaseRenewing)
	} else {
		m.setPhase(PhaseInvalid)
	}
	m.logger.Info("renewing certificate", "not_after", st.NotAfter, "remaining", st.Remaining(now).Round(time.Second))

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.cfg.RetryInitialInterval
	b.MaxInterval = m.cfg.RetryMaxInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(m.cfg.RetryMaxAttempts-1)), ctx)

	err := backoff.RetryNotify(func() error {
		return m.issueOnce(ctx)
	}, policy, func(err error, next time.Duration) {
		m.logger.Warn("certificate renewal attempt failed", "error", err, "retry_in", next)
	})
	if err == nil {
		m.setPhase(PhaseValid)
		m.metrics.SetCertAlert(false)
		return nil
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	if m.cfg.Now().Before(st.NotAfter) {
		m.setPhase(PhaseExpiring)
	} else {
		m.setPhase(PhaseInvalid)
	}
	m.metrics.SetCertAlert(true)
	m.logger.Error("certificate renewal exhausted retries; serving previous certificate",
		"error", err, "not_after", st.NotAfter, "phase", m.Phase().String())
	if m.cfg.OnAlert != nil {
		m.cfg.OnAlert(err, m.Status())
	}
	return domain.ErrCertIssuance.WithCause(err)
}

// Refresh performs one issuance attempt outside the renewal schedule, for
// example after FileSource reports a change. On failure the published
// certificate is kept.
func (m *Manager) Refresh(ctx context.Context) error {
	if err := m.issueOnce(ctx); err != nil {
		m.logger.Error("certificate refresh failed", "error", err)
		return err
	}
	m.setPhase(m.phaseFor(m.current.Load(), m.cfg.Now()))
	return nil
}

// issueOnce obtains, validates, publishes and caches one bundle.
func (m *Manager) issueOnce(ctx context.Context) error {
	m.issueMu.Lock()
	defer m.issueMu.Unlock()

	bundle, err := m.issuer.Issue(ctx, m.cfg.Domains)
	if err != nil {
		m.recordFailure(err)
		return err
	}
	now := m.cfg.Now()
	st, err := bundle.State(m.issuer.Name(), now)
	if err != nil {
		m.recordFailure(err)
		return err
	}
	if st.Remaining(now) <= 0 {
		err := fmt.Errorf("issued certificate already expired at %s", st.NotAfter)
		m.recordFailure(err)
		return err
	}

	m.publish(st)
	m.metrics.RecordCertIssuance(true)
	m.lastErr.Store(nil)
	m.logger.Info("certificate published", "issuer", st.Issuer, "not_after", st.NotAfter, "domains", st.Domains)

	if m.store != nil {
		if err := m.store.Set(ctx, cacheKey(m.cfg.Domains), bundle.Marshal()); err != nil {
			m.logger.Warn("certificate cache write failed", "error", err)
		}
	}
	return nil
}

func (m *Manager) publish(st *State) {
	m.current.Store(st)
	m.metrics.SetCertificate(float64(st.NotAfter.Unix()))
}

func (m *Manager) recordFailure(err error) {
	msg := err.Error()
	m.lastErr.Store(&msg)
	m.metrics.RecordCertIssuance(false)
}

func (m *Manager) setPhase(p Phase) {
	if Phase(m.phase.Swap(int32(p))) != p {
		m.logger.Debug("certificate phase", "phase", p.String())
	}
	m.metrics.SetCertState(int(p))
}

func (m *Manager) phaseFor(st *State, now time.Time) Phase {
	switch remaining := st.Remaining(now); {
	case remaining <= 0:
		return PhaseInvalid
	case remaining < m.cfg.RenewBefore:
		return PhaseRenewing
	default:
		return PhaseValid
	}
}
