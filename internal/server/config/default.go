package config

import (
	"time"

	"github.com/yndnr/ussal-go/internal/executor"
	"github.com/yndnr/ussal-go/internal/infra/tlscert"
)

// Modes.
const (
	ModeOrchestrator          = "orchestrator"
	ModeOrchestratorAndRunner = "orchestrator-and-runner"
	ModeRunner                = "runner"
)

// Default configuration values.
const (
	DefaultAddress           = ":443"
	DefaultMaxSessions       = 64
	DefaultAuthTimeout       = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultPingInterval      = 20 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultIdleTimeout       = 2 * time.Minute
	DefaultShutdownTimeout   = 30 * time.Second
	DefaultConnRate          = 5.0
	DefaultConnBurst         = 20

	DefaultSandboxUser = "ussal-sandbox"
	DefaultSudoPath    = "/usr/bin/sudo"

	DefaultStorageDir = "/home/ussal-runner/.local/share/ussal"
	DefaultGCInterval = time.Hour

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	ex := executor.DefaultConfig()
	return &ServerConfig{
		Mode: ModeOrchestratorAndRunner,
		Server: ServerSection{
			Address:           DefaultAddress,
			MaxSessions:       DefaultMaxSessions,
			AuthTimeout:       DefaultAuthTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			PingInterval:      DefaultPingInterval,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			ShutdownTimeout:   DefaultShutdownTimeout,
			ConnRate:          DefaultConnRate,
			ConnBurst:         DefaultConnBurst,
		},
		Auth: AuthSection{
			FailureRate:  0.1,
			FailureBurst: 10,
		},
		Executor: ExecutorSection{
			SandboxUser:    DefaultSandboxUser,
			SudoPath:       DefaultSudoPath,
			Path:           ex.Path,
			DefaultTimeout: ex.DefaultTimeout,
			MaxTimeout:     ex.MaxTimeout,
			KillGrace:      ex.KillGrace,
			ChunkSize:      ex.ChunkSize,
			MaxOutputBytes: ex.MaxOutputBytes,
			MaxConcurrent:  ex.MaxConcurrent,
		},
		TLS: TLSSection{
			Mode:                 TLSModeACME,
			RenewBefore:          tlscert.DefaultRenewBefore,
			CheckInterval:        tlscert.DefaultCheckInterval,
			RetryMaxAttempts:     tlscert.DefaultRetryMaxAttempts,
			RetryInitialInterval: tlscert.DefaultRetryInitialInterval,
			RetryMaxInterval:     tlscert.DefaultRetryMaxInterval,
			ACME: ACMESection{
				DirectoryURL: tlscert.LetsEncryptURL,
			},
		},
		Storage: StorageSection{
			Dir:        DefaultStorageDir,
			GCInterval: DefaultGCInterval,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
