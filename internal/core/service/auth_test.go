// Package service provides domain services for ussal.
package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/telemetry/metric"
	"github.com/yndnr/ussal-go/pkg/token"
)

func newTestAuthService(t *testing.T, config *AuthServiceConfig) *AuthService {
	t.Helper()
	svc, err := NewAuthService(config, metric.NewRegistry())
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}
	return svc
}

func TestAuthService_Validate(t *testing.T) {
	svc := newTestAuthService(t, &AuthServiceConfig{
		Tokens:      []string{"ussal_plain-token"},
		TokenHashes: []string{token.HashPrefix + token.Hash("ussal_hashed-token")},
	})
	ctx := context.Background()

	tests := []struct {
		name    string
		token   domain.AuthToken
		want    domain.AuthDecision
		wantErr error
	}{
		{"plaintext entry", "ussal_plain-token", domain.AuthAccepted, nil},
		{"sha256 entry", "ussal_hashed-token", domain.AuthAccepted, nil},
		{"empty", "", domain.AuthRejected, domain.ErrTokenMissing},
		{"unknown", "ussal_other", domain.AuthRejected, domain.ErrTokenInvalid},
		{"prefix of trusted", "ussal_plain-toke", domain.AuthRejected, domain.ErrTokenInvalid},
		{"trusted plus suffix", "ussal_plain-token!", domain.AuthRejected, domain.ErrTokenInvalid},
		{"hash itself", domain.AuthToken(token.Hash("ussal_hashed-token")), domain.AuthRejected, domain.ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Validate(ctx, tt.token, "")
			if got != tt.want {
				t.Errorf("Validate() = %v, want %v", got, tt.want)
			}
			if tt.wantErr == nil && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAuthService_EmptyTrustedSetRejectsEverything(t *testing.T) {
	svc := newTestAuthService(t, &AuthServiceConfig{})

	if svc.TrustedCount() != 0 {
		t.Fatalf("TrustedCount() = %d, want 0", svc.TrustedCount())
	}
	got, err := svc.Validate(context.Background(), "anything", "")
	if got != domain.AuthRejected || !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("Validate() = %v, %v", got, err)
	}
}

func TestAuthService_Argon2(t *testing.T) {
	encoded, err := HashArgon2id("ussal_argon-token")
	if err != nil {
		t.Fatalf("HashArgon2id() error = %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=16384,t=2,p=2$") {
		t.Fatalf("unexpected encoding %q", encoded)
	}

	svc := newTestAuthService(t, &AuthServiceConfig{TokenHashes: []string{encoded}})

	if got, _ := svc.Validate(context.Background(), "ussal_argon-token", ""); got != domain.AuthAccepted {
		t.Error("argon2 token should be accepted")
	}
	if got, _ := svc.Validate(context.Background(), "ussal_argon-tokem", ""); got != domain.AuthRejected {
		t.Error("wrong token should be rejected")
	}
}

func TestNewAuthService_InvalidEntries(t *testing.T) {
	tests := []struct {
		name   string
		config *AuthServiceConfig
	}{
		{"empty plaintext", &AuthServiceConfig{Tokens: []string{""}}},
		{"short sha256", &AuthServiceConfig{TokenHashes: []string{"sha256:abcd"}}},
		{"bad hex", &AuthServiceConfig{TokenHashes: []string{"sha256:" + strings.Repeat("z", 64)}}},
		{"unknown scheme", &AuthServiceConfig{TokenHashes: []string{"md5:abc"}}},
		{"argon2i", &AuthServiceConfig{TokenHashes: []string{"$argon2i$v=19$m=16384,t=2,p=2$c2FsdA$a2V5"}}},
		{"bad argon params", &AuthServiceConfig{TokenHashes: []string{"$argon2id$v=19$m=x,t=2,p=2$c2FsdA$a2V5"}}},
		{"bad argon salt", &AuthServiceConfig{TokenHashes: []string{"$argon2id$v=19$m=16384,t=2,p=2$!!!$a2V5"}}},
		{"bad argon version", &AuthServiceConfig{TokenHashes: []string{"$argon2id$v=16$m=16384,t=2,p=2$c2FsdA$a2V5"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewAuthService(tt.config, nil); err == nil {
				t.Error("NewAuthService() should fail")
			}
		})
	}
}

func TestAuthService_FailureLimiter(t *testing.T) {
	svc := newTestAuthService(t, &AuthServiceConfig{
		Tokens:       []string{"ussal_good"},
		FailureRate:  0.001,
		FailureBurst: 3,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Validate(ctx, "ussal_bad", "10.0.0.1"); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("attempt %d: error = %v, want ErrTokenInvalid", i, err)
		}
	}

	// Burst exhausted: even the correct token is refused for this client.
	if _, err := svc.Validate(ctx, "ussal_good", "10.0.0.1"); !errors.Is(err, domain.ErrAuthRateLimited) {
		t.Errorf("error = %v, want ErrAuthRateLimited", err)
	}

	// Other clients are unaffected.
	if got, err := svc.Validate(ctx, "ussal_good", "10.0.0.2"); got != domain.AuthAccepted || err != nil {
		t.Errorf("other client: Validate() = %v, %v", got, err)
	}
}

func TestAuthService_SuccessDoesNotConsumeLimiter(t *testing.T) {
	svc := newTestAuthService(t, &AuthServiceConfig{
		Tokens:       []string{"ussal_good"},
		FailureRate:  0.001,
		FailureBurst: 1,
	})

	for i := 0; i < 5; i++ {
		if got, err := svc.Validate(context.Background(), "ussal_good", "10.0.0.1"); got != domain.AuthAccepted {
			t.Fatalf("attempt %d: Validate() = %v, %v", i, got, err)
		}
	}
}

func TestAuthService_CancelledContext(t *testing.T) {
	svc := newTestAuthService(t, &AuthServiceConfig{Tokens: []string{"ussal_good"}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if got, err := svc.Validate(ctx, "ussal_good", ""); got != domain.AuthRejected || err == nil {
		t.Errorf("Validate() = %v, %v; want rejection", got, err)
	}
}

func TestRateLimiterRegistry(t *testing.T) {
	r := NewRateLimiterRegistry()

	l1 := r.GetOrCreate("a", rate.Limit(1), 1)
	l2 := r.GetOrCreate("a", rate.Limit(5), 5)
	if l1 != l2 {
		t.Error("GetOrCreate should return the existing limiter")
	}
	r.GetOrCreate("b", rate.Limit(1), 1)
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	r.Delete("a")
	if r.Len() != 1 {
		t.Errorf("Len() after Delete = %d, want 1", r.Len())
	}
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", r.Len())
	}
}

func TestDefaultAuthServiceConfig(t *testing.T) {
	cfg := DefaultAuthServiceConfig()
	if cfg.FailureRate <= 0 || cfg.FailureBurst <= 0 {
		t.Errorf("default limiter disabled: %+v", cfg)
	}
}
