package config

import "time"

// ServerConfig is the root configuration for ussal-server.
type ServerConfig struct {
	// Mode is orchestrator or orchestrator-and-runner. Both execute jobs
	// locally; runner is reserved and rejected.
	Mode     string          `koanf:"mode" json:"mode" yaml:"mode"`
	Server   ServerSection   `koanf:"server" json:"server" yaml:"server"`
	Auth     AuthSection     `koanf:"auth" json:"auth" yaml:"auth"`
	Executor ExecutorSection `koanf:"executor" json:"executor" yaml:"executor"`
	TLS      TLSSection      `koanf:"tls" json:"tls" yaml:"tls"`
	Storage  StorageSection  `koanf:"storage" json:"storage" yaml:"storage"`
	Log      LogSection      `koanf:"log" json:"log" yaml:"log"`
}

// ServerSection configures the listener and session limits.
type ServerSection struct {
	Address           string        `koanf:"address" json:"address" yaml:"address"`
	MaxSessions       int           `koanf:"max_sessions" json:"max_sessions" yaml:"max_sessions"`
	AuthTimeout       time.Duration `koanf:"auth_timeout" json:"auth_timeout" yaml:"auth_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
	PingInterval      time.Duration `koanf:"ping_interval" json:"ping_interval" yaml:"ping_interval"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout" json:"read_header_timeout" yaml:"read_header_timeout"`
	IdleTimeout       time.Duration `koanf:"idle_timeout" json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// ConnRate and ConnBurst limit new requests per client IP. Zero
	// ConnRate disables the limit.
	ConnRate  float64 `koanf:"conn_rate" json:"conn_rate" yaml:"conn_rate"`
	ConnBurst int     `koanf:"conn_burst" json:"conn_burst" yaml:"conn_burst"`
}

// AuthSection holds the trusted token set. It is read once at startup.
type AuthSection struct {
	Tokens       []string `koanf:"tokens" json:"tokens" yaml:"tokens"`
	TokenHashes  []string `koanf:"token_hashes" json:"token_hashes" yaml:"token_hashes"`
	FailureRate  float64  `koanf:"failure_rate" json:"failure_rate" yaml:"failure_rate"`
	FailureBurst int      `koanf:"failure_burst" json:"failure_burst" yaml:"failure_burst"`
}

// ExecutorSection configures workload execution.
type ExecutorSection struct {
	SandboxUser    string        `koanf:"sandbox_user" json:"sandbox_user" yaml:"sandbox_user"`
	SudoPath       string        `koanf:"sudo_path" json:"sudo_path" yaml:"sudo_path"`
	Path           string        `koanf:"path" json:"path" yaml:"path"`
	DefaultTimeout time.Duration `koanf:"default_timeout" json:"default_timeout" yaml:"default_timeout"`
	MaxTimeout     time.Duration `koanf:"max_timeout" json:"max_timeout" yaml:"max_timeout"`
	KillGrace      time.Duration `koanf:"kill_grace" json:"kill_grace" yaml:"kill_grace"`
	ChunkSize      int           `koanf:"chunk_size" json:"chunk_size" yaml:"chunk_size"`
	MaxOutputBytes int64         `koanf:"max_output_bytes" json:"max_output_bytes" yaml:"max_output_bytes"`
	MaxConcurrent  int           `koanf:"max_concurrent" json:"max_concurrent" yaml:"max_concurrent"`
}

// TLS modes.
const (
	TLSModeACME       = "acme"
	TLSModeSelfSigned = "self_signed"
	TLSModeFiles      = "files"
	TLSModeDisabled   = "disabled"
)

// TLSSection configures the certificate lifecycle.
type TLSSection struct {
	Mode                 string        `koanf:"mode" json:"mode" yaml:"mode"`
	Domains              []string      `koanf:"domains" json:"domains" yaml:"domains"`
	RenewBefore          time.Duration `koanf:"renew_before" json:"renew_before" yaml:"renew_before"`
	CheckInterval        time.Duration `koanf:"check_interval" json:"check_interval" yaml:"check_interval"`
	RetryMaxAttempts     int           `koanf:"retry_max_attempts" json:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryInitialInterval time.Duration `koanf:"retry_initial_interval" json:"retry_initial_interval" yaml:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `koanf:"retry_max_interval" json:"retry_max_interval" yaml:"retry_max_interval"`
	ACME                 ACMESection   `koanf:"acme" json:"acme" yaml:"acme"`
	CertFile             string        `koanf:"cert_file" json:"cert_file" yaml:"cert_file"`
	KeyFile              string        `koanf:"key_file" json:"key_file" yaml:"key_file"`
}

// ACMESection configures the ACME issuer.
type ACMESection struct {
	DirectoryURL string `koanf:"directory_url" json:"directory_url" yaml:"directory_url"`
	Email        string `koanf:"email" json:"email" yaml:"email"`
}

// StorageSection configures the certificate cache.
type StorageSection struct {
	// Dir is the badger directory. Empty keeps the cache in memory.
	Dir           string        `koanf:"dir" json:"dir" yaml:"dir"`
	EncryptionKey string        `koanf:"encryption_key" json:"encryption_key" yaml:"encryption_key"`
	GCInterval    time.Duration `koanf:"gc_interval" json:"gc_interval" yaml:"gc_interval"`
}

// LogSection configures logging. Level may change at runtime.
type LogSection struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
	Output string `koanf:"output" json:"output" yaml:"output"`
}
