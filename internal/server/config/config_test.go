package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/ussal-go/internal/infra/confloader"
	"github.com/yndnr/ussal-go/internal/infra/tlscert"
)

// validConfig returns defaults plus the fields that have no default.
func validConfig() *ServerConfig {
	cfg := Default()
	cfg.Auth.Tokens = []string{"ussal_0123456789abcdef"}
	cfg.TLS.Domains = []string{"bench.example.com"}
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Mode != ModeOrchestratorAndRunner {
		t.Errorf("Mode = %q, want %q", cfg.Mode, ModeOrchestratorAndRunner)
	}
	if cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %q, want %q", cfg.Server.Address, DefaultAddress)
	}
	if cfg.Server.MaxSessions != DefaultMaxSessions {
		t.Errorf("Server.MaxSessions = %d, want %d", cfg.Server.MaxSessions, DefaultMaxSessions)
	}
	if cfg.Executor.MaxConcurrent < cfg.Server.MaxSessions {
		t.Errorf("Executor.MaxConcurrent = %d, below Server.MaxSessions %d", cfg.Executor.MaxConcurrent, cfg.Server.MaxSessions)
	}
	if cfg.Executor.SandboxUser != DefaultSandboxUser {
		t.Errorf("Executor.SandboxUser = %q", cfg.Executor.SandboxUser)
	}
	if cfg.TLS.Mode != TLSModeACME {
		t.Errorf("TLS.Mode = %q, want acme", cfg.TLS.Mode)
	}
	if cfg.TLS.RenewBefore != tlscert.DefaultRenewBefore {
		t.Errorf("TLS.RenewBefore = %v", cfg.TLS.RenewBefore)
	}
	if cfg.TLS.ACME.DirectoryURL != tlscert.LetsEncryptURL {
		t.Errorf("TLS.ACME.DirectoryURL = %q", cfg.TLS.ACME.DirectoryURL)
	}
	if cfg.Log.Level != DefaultLogLevel || cfg.Log.Format != DefaultLogFormat {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestVerify_ValidConfig(t *testing.T) {
	if err := Verify(validConfig()); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ServerConfig)
		want   string
	}{
		{"bad mode", func(c *ServerConfig) { c.Mode = "bencher" }, "mode"},
		{"no address", func(c *ServerConfig) { c.Server.Address = "" }, "server.address"},
		{"address without port", func(c *ServerConfig) { c.Server.Address = "localhost" }, "server.address"},
		{"zero sessions", func(c *ServerConfig) { c.Server.MaxSessions = 0 }, "server.max_sessions"},
		{"zero auth timeout", func(c *ServerConfig) { c.Server.AuthTimeout = 0 }, "server.auth_timeout"},
		{"burst missing", func(c *ServerConfig) { c.Server.ConnBurst = 0 }, "server.conn_burst"},
		{"no tokens", func(c *ServerConfig) { c.Auth.Tokens = nil }, "auth.tokens"},
		{"empty token", func(c *ServerConfig) { c.Auth.Tokens = []string{""} }, "auth.tokens[0]"},
		{"no sandbox", func(c *ServerConfig) { c.Executor.SandboxUser = "" }, "executor.sandbox_user"},
		{"root sandbox", func(c *ServerConfig) { c.Executor.SandboxUser = "root" }, "executor.sandbox_user"},
		{"max below default", func(c *ServerConfig) {
			c.Executor.DefaultTimeout = time.Hour
			c.Executor.MaxTimeout = time.Minute
		}, "executor.max_timeout"},
		{"zero concurrency", func(c *ServerConfig) { c.Executor.MaxConcurrent = 0 }, "executor.max_concurrent"},
		{"bad tls mode", func(c *ServerConfig) { c.TLS.Mode = "manual" }, "tls.mode"},
		{"acme without domains", func(c *ServerConfig) { c.TLS.Domains = nil }, "tls.domains"},
		{"files without paths", func(c *ServerConfig) { c.TLS.Mode = TLSModeFiles }, "tls.cert_file"},
		{"zero retries", func(c *ServerConfig) { c.TLS.RetryMaxAttempts = 0 }, "tls.retry_max_attempts"},
		{"inverted retry bounds", func(c *ServerConfig) {
			c.TLS.RetryInitialInterval = time.Hour
			c.TLS.RetryMaxInterval = time.Minute
		}, "tls.retry_initial_interval"},
		{"short encryption key", func(c *ServerConfig) { c.Storage.EncryptionKey = "short" }, "storage.encryption_key"},
		{"bad log level", func(c *ServerConfig) { c.Log.Level = "trace" }, "log.level"},
		{"bad log format", func(c *ServerConfig) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := Verify(cfg)
			if err == nil {
				t.Fatal("Verify() expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Verify() error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestVerify_RunnerModeRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = ModeRunner
	if err := Verify(cfg); !errors.Is(err, ErrRunnerModeUnsupported) {
		t.Errorf("Verify() error = %v, want ErrRunnerModeUnsupported", err)
	}
}

func TestVerify_TLSDisabledNeedsNothing(t *testing.T) {
	cfg := validConfig()
	cfg.TLS = TLSSection{Mode: TLSModeDisabled}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestVerify_TokenHashesOnly(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.Tokens = nil
	cfg.Auth.TokenHashes = []string{"sha256:00"}
	if err := Verify(cfg); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
}

func TestSanitize(t *testing.T) {
	cfg := validConfig()
	cfg.Storage.EncryptionKey = "super-secret-key-1234567890"
	cfg.Auth.TokenHashes = []string{"$argon2id$v=19$m=65536,t=1,p=4$c2FsdHNhbHQ$aGFzaGhhc2g"}

	sanitized := Sanitize(cfg)

	if cfg.Storage.EncryptionKey != "super-secret-key-1234567890" {
		t.Error("Original config should not be modified")
	}
	if cfg.Auth.Tokens[0] != "ussal_0123456789abcdef" {
		t.Error("Original tokens should not be modified")
	}
	if sanitized.Storage.EncryptionKey == cfg.Storage.EncryptionKey {
		t.Error("Sanitized config should mask the encryption key")
	}
	if strings.Contains(sanitized.Auth.Tokens[0], "0123456789") {
		t.Errorf("Sanitized token = %q, should be masked", sanitized.Auth.Tokens[0])
	}
	if !strings.HasSuffix(sanitized.Auth.TokenHashes[0], "...") {
		t.Errorf("Sanitized hash = %q, want truncated", sanitized.Auth.TokenHashes[0])
	}
}

func TestSanitize_EmptyKey(t *testing.T) {
	sanitized := Sanitize(&ServerConfig{})
	if sanitized.Storage.EncryptionKey != "" {
		t.Error("Empty key should remain empty")
	}
}

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a", "****"},
		{"abcd", "****"},
		{"abcdefgh", "****"},
		{"abcdefghi", "ab*****hi"},
		{"1234567890", "12******90"},
	}
	for _, tt := range tests {
		if got := maskSecret(tt.input); got != tt.expected {
			t.Errorf("maskSecret(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ussal.yaml")
	content := `
mode: orchestrator
server:
  address: ":8443"
auth:
  tokens: ["ussal_fromfile00000000"]
tls:
  mode: self_signed
  domains: ["localhost"]
  retry_max_attempts: 3
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("USSAL_SERVER_MAX_SESSIONS", "7")
	t.Setenv("USSAL_EXECUTOR_SANDBOX_USER", "bench-sandbox")
	t.Setenv("USSAL_TLS_RENEW_BEFORE", "240h")

	cfg := Default()
	if err := confloader.NewLoader(confloader.WithConfigFile(path)).Load(cfg); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := Verify(cfg); err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if cfg.Mode != ModeOrchestrator {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.Server.Address != ":8443" || cfg.Server.MaxSessions != 7 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Server.AuthTimeout != DefaultAuthTimeout {
		t.Errorf("AuthTimeout = %v, want default", cfg.Server.AuthTimeout)
	}
	if cfg.Executor.SandboxUser != "bench-sandbox" {
		t.Errorf("SandboxUser = %q", cfg.Executor.SandboxUser)
	}
	if cfg.TLS.RenewBefore != 240*time.Hour || cfg.TLS.RetryMaxAttempts != 3 {
		t.Errorf("TLS = %+v", cfg.TLS)
	}
}
