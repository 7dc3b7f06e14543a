package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/yndnr/ussal-go/internal/telemetry/logger"
)

// ErrRunnerModeUnsupported is returned for the reserved runner-only mode.
var ErrRunnerModeUnsupported = errors.New("mode runner is not supported: jobs are executed by the orchestrator itself, use orchestrator-and-runner")

// minEncryptionKeyLen is the shortest accepted storage.encryption_key.
const minEncryptionKeyLen = 16

// Verify validates the configuration.
func Verify(cfg *ServerConfig) error {
	switch cfg.Mode {
	case ModeOrchestrator, ModeOrchestratorAndRunner:
	case ModeRunner:
		return ErrRunnerModeUnsupported
	default:
		return fmt.Errorf("mode %q is invalid, want %s or %s", cfg.Mode, ModeOrchestrator, ModeOrchestratorAndRunner)
	}
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyAuth(&cfg.Auth); err != nil {
		return err
	}
	if err := verifyExecutor(&cfg.Executor); err != nil {
		return err
	}
	if err := verifyTLS(&cfg.TLS); err != nil {
		return err
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	return verifyLog(&cfg.Log)
}

func verifyServer(cfg *ServerSection) error {
	if cfg.Address == "" {
		return errors.New("server.address is required")
	}
	if _, _, err := net.SplitHostPort(cfg.Address); err != nil {
		return fmt.Errorf("server.address %q: %w", cfg.Address, err)
	}
	if cfg.MaxSessions < 1 {
		return errors.New("server.max_sessions must be at least 1")
	}
	if cfg.AuthTimeout <= 0 {
		return errors.New("server.auth_timeout must be positive")
	}
	if cfg.WriteTimeout <= 0 {
		return errors.New("server.write_timeout must be positive")
	}
	if cfg.ConnRate < 0 || cfg.ConnBurst < 0 {
		return errors.New("server.conn_rate and server.conn_burst must not be negative")
	}
	if cfg.ConnRate > 0 && cfg.ConnBurst < 1 {
		return errors.New("server.conn_burst must be at least 1 when conn_rate is set")
	}
	return nil
}

func verifyAuth(cfg *AuthSection) error {
	if len(cfg.Tokens) == 0 && len(cfg.TokenHashes) == 0 {
		return errors.New("auth.tokens or auth.token_hashes must list at least one token")
	}
	for i, tok := range cfg.Tokens {
		if tok == "" {
			return fmt.Errorf("auth.tokens[%d] is empty", i)
		}
	}
	if cfg.FailureRate < 0 || cfg.FailureBurst < 0 {
		return errors.New("auth.failure_rate and auth.failure_burst must not be negative")
	}
	return nil
}

func verifyExecutor(cfg *ExecutorSection) error {
	if cfg.SandboxUser == "" {
		return errors.New("executor.sandbox_user is required")
	}
	if cfg.SandboxUser == "root" {
		return errors.New("executor.sandbox_user must not be root")
	}
	if cfg.DefaultTimeout <= 0 {
		return errors.New("executor.default_timeout must be positive")
	}
	if cfg.MaxTimeout > 0 && cfg.MaxTimeout < cfg.DefaultTimeout {
		return errors.New("executor.max_timeout must not be below executor.default_timeout")
	}
	if cfg.ChunkSize < 1 {
		return errors.New("executor.chunk_size must be at least 1")
	}
	if cfg.MaxOutputBytes < 0 {
		return errors.New("executor.max_output_bytes must not be negative")
	}
	if cfg.MaxConcurrent < 1 {
		return errors.New("executor.max_concurrent must be at least 1")
	}
	return nil
}

func verifyTLS(cfg *TLSSection) error {
	switch cfg.Mode {
	case TLSModeDisabled:
		return nil
	case TLSModeACME, TLSModeSelfSigned:
		if len(cfg.Domains) == 0 {
			return fmt.Errorf("tls.domains is required for tls.mode %s", cfg.Mode)
		}
	case TLSModeFiles:
		if cfg.CertFile == "" || cfg.KeyFile == "" {
			return errors.New("tls.cert_file and tls.key_file are required for tls.mode files")
		}
	default:
		return fmt.Errorf("tls.mode %q is invalid", cfg.Mode)
	}
	if cfg.Mode == TLSModeACME && cfg.ACME.DirectoryURL == "" {
		return errors.New("tls.acme.directory_url is required")
	}
	if cfg.RenewBefore <= 0 {
		return errors.New("tls.renew_before must be positive")
	}
	if cfg.RetryMaxAttempts < 1 {
		return errors.New("tls.retry_max_attempts must be at least 1")
	}
	if cfg.RetryInitialInterval <= 0 || cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		return errors.New("tls.retry_initial_interval must be positive and not above tls.retry_max_interval")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	if cfg.EncryptionKey != "" && len(cfg.EncryptionKey) < minEncryptionKeyLen {
		return fmt.Errorf("storage.encryption_key must be at least %d characters", minEncryptionKeyLen)
	}
	if cfg.GCInterval < 0 {
		return errors.New("storage.gc_interval must not be negative")
	}
	return nil
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level %q is invalid", cfg.Level)
	}
	if !logger.ValidFormat(cfg.Format) {
		return fmt.Errorf("log.format %q is invalid", cfg.Format)
	}
	return nil
}
