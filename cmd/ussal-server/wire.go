package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"path/filepath"
	"sync"
	"time"

	"github.com/yndnr/ussal-go/internal/core/domain"
	"github.com/yndnr/ussal-go/internal/executor"
	"github.com/yndnr/ussal-go/internal/infra/confloader"
	"github.com/yndnr/ussal-go/internal/infra/provision"
	"github.com/yndnr/ussal-go/internal/infra/tlscert"
	"github.com/yndnr/ussal-go/internal/server/config"
	"github.com/yndnr/ussal-go/internal/storage"
	"github.com/yndnr/ussal-go/internal/telemetry/logger"
	"github.com/yndnr/ussal-go/internal/telemetry/metric"
)

// readConfig loads defaults, the optional file, USSAL_ environment
// variables and the -mode override, in increasing priority.
func readConfig(configFile, mode string) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	if mode != "" {
		opts = append(opts, confloader.WithOverrides(map[string]any{"mode": mode}))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfig reads and validates the configuration.
func loadConfig(configFile, mode string) (*config.ServerConfig, error) {
	cfg, err := readConfig(configFile, mode)
	if err != nil {
		return nil, err
	}
	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func sanitizedConfig(cfg *config.ServerConfig) *config.ServerConfig {
	return config.Sanitize(cfg)
}

// initLogger initializes the structured logger and makes it the default.
func initLogger(cfg *config.ServerConfig) (logger.Logger, func() error, error) {
	out, closeOut, err := logger.OpenOutput(cfg.Log.Output)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
	if err != nil {
		closeOut()
		return nil, nil, err
	}
	logger.SetDefault(log)
	return log, closeOut, nil
}

// initStorage opens the certificate cache, sealed when an encryption key is
// configured.
func initStorage(cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) (storage.KV, error) {
	storageCfg := storage.DefaultConfig(cfg.Storage.Dir)
	storageCfg.GCInterval = cfg.Storage.GCInterval

	engine, err := storage.NewBadgerEngine(storageCfg, log)
	if err != nil {
		return nil, err
	}
	if err := metrics.Register(engine); err != nil {
		engine.Close()
		return nil, fmt.Errorf("register store metrics: %w", err)
	}
	if cfg.Storage.Dir == "" {
		log.Warn("storage.dir is empty, certificate cache is kept in memory only")
	}

	if cfg.Storage.EncryptionKey == "" {
		log.Warn("storage.encryption_key is empty, cached private keys are stored unsealed")
		return engine, nil
	}
	sealed, err := storage.NewSealedStore(engine, []byte(cfg.Storage.EncryptionKey))
	if err != nil {
		engine.Close()
		return nil, fmt.Errorf("seal store: %w", err)
	}
	return sealed, nil
}

// certificates runs the certificate manager and, in files mode, the file
// watcher.
type certificates struct {
	manager *tlscert.Manager
	files   *tlscert.FileSource
	logger  *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// initCertificates builds the certificate manager for tls.mode and loads the
// cached certificate. It returns nil when TLS is disabled.
func initCertificates(ctx context.Context, cfg *config.ServerConfig, store storage.KV, log *slog.Logger, metrics *metric.Registry) (*certificates, error) {
	c := &certificates{logger: log}
	domains := cfg.TLS.Domains

	var issuer tlscert.Issuer
	switch cfg.TLS.Mode {
	case config.TLSModeDisabled:
		log.Warn("tls.mode is disabled, serving plain HTTP")
		return nil, nil
	case config.TLSModeACME:
		issuer = tlscert.NewACMEIssuer(tlscert.ACMEConfig{
			DirectoryURL: cfg.TLS.ACME.DirectoryURL,
			Email:        cfg.TLS.ACME.Email,
			Store:        store,
			Logger:       log,
		})
	case config.TLSModeSelfSigned:
		issuer = &tlscert.SelfSignedIssuer{}
	case config.TLSModeFiles:
		c.files = tlscert.NewFileSource(cfg.TLS.CertFile, cfg.TLS.KeyFile, tlscert.WithFileLogger(log))
		issuer = c.files
		// The files are the source of truth; caching them would only
		// serve stale copies.
		store = nil
		if len(domains) == 0 {
			var err error
			if domains, err = fileDomains(ctx, c.files); err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("tls.mode %q is invalid", cfg.TLS.Mode)
	}

	tcfg := tlscert.DefaultConfig(domains)
	tcfg.RenewBefore = cfg.TLS.RenewBefore
	tcfg.CheckInterval = cfg.TLS.CheckInterval
	tcfg.RetryMaxAttempts = cfg.TLS.RetryMaxAttempts
	tcfg.RetryInitialInterval = cfg.TLS.RetryInitialInterval
	tcfg.RetryMaxInterval = cfg.TLS.RetryMaxInterval
	tcfg.OnAlert = func(err error, st tlscert.Status) {
		log.Error("certificate renewal exhausted, serving the previous certificate",
			"phase", st.Phase.String(),
			"not_after", st.NotAfter,
			"error", err)
	}

	mgr, err := tlscert.NewManager(issuer, store, tcfg, log, metrics)
	if err != nil {
		return nil, err
	}
	if err := mgr.Load(ctx); err != nil {
		log.Warn("certificate cache unavailable, issuing a new certificate", "error", err)
	}
	c.manager = mgr
	return c, nil
}

// fileDomains reads the names a static certificate covers.
func fileDomains(ctx context.Context, files *tlscert.FileSource) ([]string, error) {
	bundle, err := files.Issue(ctx, nil)
	if err != nil {
		return nil, err
	}
	st, err := bundle.State(files.Name(), time.Now())
	if err != nil {
		return nil, err
	}
	if len(st.Domains) == 0 {
		return nil, errors.New("tls.cert_file names no domains")
	}
	return st.Domains, nil
}

func (c *certificates) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.manager.Run(ctx); err != nil {
			c.logger.Error("certificate manager stopped", "error", err)
		}
	}()

	if c.files == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		err := c.files.Watch(ctx, func() {
			if err := c.manager.Refresh(ctx); err != nil {
				c.logger.Error("certificate reload failed", "error", err)
			}
		})
		if err != nil {
			c.logger.Error("certificate file watcher stopped", "error", err)
		}
	}()
}

func (c *certificates) stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// initExecutor resolves the delegation rule and runs the preflight. Any
// failure leaves an executor that rejects every job with
// privilege_unavailable; the service never runs workloads as itself.
func initExecutor(ctx context.Context, cfg *config.ServerConfig, log *slog.Logger, metrics *metric.Registry) *executor.Executor {
	ecfg := executor.Config{
		DefaultTimeout: cfg.Executor.DefaultTimeout,
		MaxTimeout:     cfg.Executor.MaxTimeout,
		KillGrace:      cfg.Executor.KillGrace,
		ChunkSize:      cfg.Executor.ChunkSize,
		MaxOutputBytes: cfg.Executor.MaxOutputBytes,
		MaxConcurrent:  cfg.Executor.MaxConcurrent,
		Path:           cfg.Executor.Path,
	}
	log = log.With("component", "executor")
	if cfg.Executor.MaxConcurrent < cfg.Server.MaxSessions {
		log.Warn("executor.max_concurrent is below server.max_sessions, some sessions will be refused with capacity",
			"max_concurrent", cfg.Executor.MaxConcurrent,
			"max_sessions", cfg.Server.MaxSessions)
	}

	unavailable := func(err error) *executor.Executor {
		ex := executor.New(nil, domain.Identity{}, ecfg, log, metrics)
		ex.MarkUnavailable(err)
		log.Error("executor unavailable, jobs will be rejected", "error", err)
		return ex
	}

	rule, err := executor.ResolveRule(cfg.Executor.SandboxUser)
	if err != nil {
		return unavailable(err)
	}
	spawner, err := executor.NewSudoSpawner(rule,
		executor.WithSudoPath(cfg.Executor.SudoPath),
		executor.WithSudoLogger(log))
	if err != nil {
		return unavailable(err)
	}

	ex := executor.New(spawner, rule.Sandbox, ecfg, log, metrics)
	if err := executor.Preflight(ctx, spawner); err != nil {
		ex.MarkUnavailable(err)
		log.Error("executor preflight failed, jobs will be rejected", "sandbox", rule.Sandbox.Name, "error", err)
		return ex
	}
	log.Info("executor ready",
		"service", rule.Service.Name,
		"sandbox", rule.Sandbox.Name,
		"max_concurrent", ex.Capacity())
	return ex
}

// provisioningContract describes the host setup this configuration needs.
func provisioningContract(cfg *config.ServerConfig, configFile string) (provision.Contract, error) {
	c := provision.DefaultContract()
	c.SandboxUser = cfg.Executor.SandboxUser
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return c, err
		}
		c.Args = []string{"-config", abs}
	}
	if err := c.Validate(); err != nil {
		return c, fmt.Errorf("provisioning contract: %w", err)
	}
	return c, nil
}

// checkProvisioning logs when the host does not satisfy the contract for
// the running account. The executor preflight decides whether jobs run.
func checkProvisioning(cfg *config.ServerConfig, configFile string, log *slog.Logger) {
	c, err := provisioningContract(cfg, configFile)
	if err == nil {
		if u, uerr := user.Current(); uerr == nil {
			c.ServiceUser = u.Username
		}
		err = c.Verify(nil)
	}
	if err != nil {
		log.Warn("provisioning postconditions not met", "error", err)
	}
}

// reloadLogLevel re-reads the configuration and applies log.level. Every
// other setting is fixed for the life of the process.
func reloadLogLevel(configFile, mode string, log *slog.Logger) func(context.Context) error {
	return func(context.Context) error {
		cfg, err := readConfig(configFile, mode)
		if err != nil {
			return err
		}
		if !logger.ValidLevel(cfg.Log.Level) {
			return fmt.Errorf("log.level %q is invalid", cfg.Log.Level)
		}
		if old := logger.GetLevel(); old != cfg.Log.Level {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "from", old, "to", logger.GetLevel())
		}
		return nil
	}
}

// watchConfig applies reload whenever the configuration file changes.
func watchConfig(ctx context.Context, path string, reload func(context.Context) error, log *slog.Logger) {
	w := confloader.NewWatcher(path, confloader.WithWatcherLogger(log))
	err := w.Run(ctx, func(string) {
		if err := reload(ctx); err != nil {
			log.Warn("config reload failed", "error", err)
		}
	})
	if err != nil && ctx.Err() == nil {
		log.Warn("config watcher stopped", "error", err)
	}
}
