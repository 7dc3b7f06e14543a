// Package service provides domain services for ussal.
package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/time/rate"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/telemetry/metric"
	"github.com/yndnr/ussal-go/pkg/cmap"
	"github.com/yndnr/ussal-go/pkg/token"
)

// Auth results recorded in metrics.
const (
	authResultAccepted    = "accepted"
	authResultRejected    = "rejected"
	authResultMissing     = "missing"
	authResultRateLimited = "rate_limited"
)

// argon2id parameters used by HashArgon2id.
const (
	argon2Time    = 2
	argon2Memory  = 16384
	argon2Threads = 2
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// maxLimiterEntries bounds the per-client limiter map.
const maxLimiterEntries = 10000

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	// Tokens are plaintext trusted tokens. Only their digests are kept.
	Tokens []string

	// TokenHashes are "sha256:<hex>" or "$argon2id$..." encoded tokens.
	TokenHashes []string

	// FailureRate is the sustained rate of failed attempts allowed per
	// client IP, in attempts per second. Zero disables the limiter.
	FailureRate float64

	// FailureBurst is the number of failures allowed before limiting.
	FailureBurst int
}

// DefaultAuthServiceConfig returns default configuration.
func DefaultAuthServiceConfig() *AuthServiceConfig {
	return &AuthServiceConfig{
		FailureRate:  0.1,
		FailureBurst: 10,
	}
}

// AuthService is the Credential Validator.
//
// The trusted set is fixed at construction. Validation has no side effects
// beyond metrics and the failure limiter.
type AuthService struct {
	digests []token.Digest
	argon   []argon2Hash

	failures     *RateLimiterRegistry
	failureRate  rate.Limit
	failureBurst int

	metrics *metric.Registry
}

// NewAuthService builds the trusted set from config.
//
// An entry that cannot be parsed is a configuration error; the service never
// silently drops a trusted token.
func NewAuthService(config *AuthServiceConfig, metrics *metric.Registry) (*AuthService, error) {
	if config == nil {
		config = DefaultAuthServiceConfig()
	}

	s := &AuthService{
		failures:     NewRateLimiterRegistry(),
		failureRate:  rate.Limit(config.FailureRate),
		failureBurst: config.FailureBurst,
		metrics:      metrics,
	}

	for i, t := range config.Tokens {
		if t == "" {
			return nil, fmt.Errorf("auth.tokens[%d]: empty token", i)
		}
		s.digests = append(s.digests, token.Sum(t))
	}
	for i, h := range config.TokenHashes {
		switch {
		case strings.HasPrefix(h, token.HashPrefix):
			d, ok := token.ParseDigest(h)
			if !ok {
				return nil, fmt.Errorf("auth.token_hashes[%d]: invalid sha256 digest", i)
			}
			s.digests = append(s.digests, d)
		case strings.HasPrefix(h, "$argon2id$"):
			ah, err := parseArgon2Hash(h)
			if err != nil {
				return nil, fmt.Errorf("auth.token_hashes[%d]: %w", i, err)
			}
			s.argon = append(s.argon, ah)
		default:
			return nil, fmt.Errorf("auth.token_hashes[%d]: unsupported hash format", i)
		}
	}

	return s, nil
}

// TrustedCount returns the size of the trusted set.
func (s *AuthService) TrustedCount() int {
	return len(s.digests) + len(s.argon)
}

// Validate decides whether tok belongs to the trusted set.
//
// clientIP keys the failure limiter; it may be empty, in which case the
// limiter is not consulted.
func (s *AuthService) Validate(ctx context.Context, tok domain.AuthToken, clientIP string) (domain.AuthDecision, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuthRejected, err
	}

	limiter := s.limiterFor(clientIP)
	if limiter != nil && limiter.Tokens() < 1 {
		s.metrics.RecordAuth(authResultRateLimited)
		return domain.AuthRejected, domain.ErrAuthRateLimited
	}

	if tok.IsEmpty() {
		s.recordFailure(limiter)
		s.metrics.RecordAuth(authResultMissing)
		return domain.AuthRejected, domain.ErrTokenMissing
	}

	if !s.matches(tok.Reveal()) {
		s.recordFailure(limiter)
		s.metrics.RecordAuth(authResultRejected)
		return domain.AuthRejected, domain.ErrTokenInvalid
	}

	s.metrics.RecordAuth(authResultAccepted)
	return domain.AuthAccepted, nil
}

// matches compares the token against every trusted entry. The loop never
// exits early so timing does not reveal which entry or prefix matched.
func (s *AuthService) matches(presented string) bool {
	found := token.MatchAny(presented, s.digests)
	for i := range s.argon {
		if s.argon[i].verify(presented) {
			found = true
		}
	}
	return found
}

func (s *AuthService) limiterFor(clientIP string) *rate.Limiter {
	if clientIP == "" || s.failureRate <= 0 || s.failureBurst <= 0 {
		return nil
	}
	if s.failures.Len() >= maxLimiterEntries {
		s.failures.Clear()
	}
	return s.failures.GetOrCreate(clientIP, s.failureRate, s.failureBurst)
}

func (s *AuthService) recordFailure(limiter *rate.Limiter) {
	if limiter != nil {
		limiter.Allow()
	}
}

// ============================================================================
// Argon2id hashes
// ============================================================================

type argon2Hash struct {
	time    uint32
	memory  uint32
	threads uint8
	salt    []byte
	key     []byte
}

// parseArgon2Hash parses $argon2id$v=19$m=16384,t=2,p=2$<salt>$<hash>.
func parseArgon2Hash(encoded string) (argon2Hash, error) {
	var h argon2Hash

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return h, fmt.Errorf("malformed argon2id hash")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return h, fmt.Errorf("unsupported argon2 version %q", parts[2])
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &h.memory, &h.time, &h.threads); err != nil {
		return h, fmt.Errorf("malformed argon2 parameters: %w", err)
	}
	if h.time == 0 || h.memory == 0 || h.threads == 0 {
		return h, fmt.Errorf("argon2 parameters must be positive")
	}

	var err error
	if h.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return h, fmt.Errorf("malformed argon2 salt: %w", err)
	}
	if h.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return h, fmt.Errorf("malformed argon2 key: %w", err)
	}
	if len(h.key) == 0 {
		return h, fmt.Errorf("empty argon2 key")
	}
	return h, nil
}

func (h argon2Hash) verify(secret string) bool {
	computed := argon2.IDKey([]byte(secret), h.salt, h.time, h.memory, h.threads, uint32(len(h.key)))
	return subtle.ConstantTimeCompare(computed, h.key) == 1
}

// HashArgon2id encodes secret as an argon2id hash accepted in
// auth.token_hashes.
func HashArgon2id(secret string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, argon2Memory, argon2Time, argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// ============================================================================
// RateLimiterRegistry - per-client failure limiters
// ============================================================================

// RateLimiterRegistry manages rate limiters keyed by client.
type RateLimiterRegistry struct {
	limiters *cmap.Map[*rate.Limiter]
}

// NewRateLimiterRegistry creates a new RateLimiterRegistry.
func NewRateLimiterRegistry() *RateLimiterRegistry {
	return &RateLimiterRegistry{limiters: cmap.New[*rate.Limiter]()}
}

// GetOrCreate retrieves an existing rate limiter or creates a new one.
func (r *RateLimiterRegistry) GetOrCreate(key string, limit rate.Limit, burst int) *rate.Limiter {
	return r.limiters.GetOrCreate(key, func() *rate.Limiter {
		return rate.NewLimiter(limit, burst)
	})
}

// Len returns the number of tracked clients.
func (r *RateLimiterRegistry) Len() int {
	return r.limiters.Count()
}

// Delete removes a rate limiter for a specific key.
func (r *RateLimiterRegistry) Delete(key string) {
	r.limiters.Delete(key)
}

// Clear removes all rate limiters.
func (r *RateLimiterRegistry) Clear() {
	r.limiters.Clear()
}
