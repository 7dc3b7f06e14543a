package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/ussal-go/internal/core/service"
	"github.com/yndnr/ussal-go/internal/infra/buildinfo"
	"github.com/yndnr/ussal-go/internal/infra/shutdown"
	"github.com/yndnr/ussal-go/internal/server/httpserver"
	"github.com/yndnr/ussal-go/internal/server/httpserver/handler"
	"github.com/yndnr/ussal-go/internal/server/jobsession"
	"github.com/yndnr/ussal-go/internal/telemetry/metric"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command line flags.
type options struct {
	configFile        string
	mode              string
	printProvisioning bool
	showVersion       bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("ussal-server", flag.ContinueOnError)
	opts := &options{}
	fs.StringVar(&opts.configFile, "config", "", "Path to configuration file")
	fs.StringVar(&opts.mode, "mode", "", "Override the configured mode (orchestrator, orchestrator-and-runner)")
	fs.BoolVar(&opts.printProvisioning, "print-provisioning", false, "Print the systemd unit and sudoers rule, then exit")
	fs.BoolVar(&opts.showVersion, "version", false, "Show version information")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

func run(args []string, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	if opts.showVersion {
		info := buildinfo.Get()
		fmt.Fprintf(stdout, "ussal-server %s (commit: %s, built: %s, %s)\n", info.Version, info.Commit, info.BuildTime, info.GoVersion)
		return nil
	}

	if opts.printProvisioning {
		cfg, err := readConfig(opts.configFile, opts.mode)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		contract, err := provisioningContract(cfg, opts.configFile)
		if err != nil {
			return err
		}
		return contract.Render(stdout)
	}

	cfg, err := loadConfig(opts.configFile, opts.mode)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLog()
	slogger := log.Slog()

	info := buildinfo.Get()
	log.Info("starting ussal-server",
		"version", info.Version,
		"commit", info.Commit,
		"mode", cfg.Mode,
		"config", opts.configFile)
	log.Debug("effective configuration", "config", sanitizedConfig(cfg))

	metrics := metric.NewRegistry()
	if err := metrics.Register(metric.NewCollector(info.Version, info.Commit, cfg.Mode)); err != nil {
		return fmt.Errorf("register build collector: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownHandler := shutdown.NewHandler(cfg.Server.ShutdownTimeout, slogger)

	// Hooks run in reverse order of registration, so the store closes last.
	store, err := initStorage(cfg, slogger, metrics)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	shutdownHandler.OnShutdown("store", func(context.Context) error {
		return store.Close()
	})

	certs, err := initCertificates(ctx, cfg, store, slogger, metrics)
	if err != nil {
		return fmt.Errorf("init certificates: %w", err)
	}
	if certs != nil {
		certs.start(ctx)
		shutdownHandler.OnShutdown("certificates", func(context.Context) error {
			certs.stop()
			return nil
		})
	}

	runner := initExecutor(ctx, cfg, slogger, metrics)
	checkProvisioning(cfg, opts.configFile, slogger)
	shutdownHandler.OnShutdown("executor", runner.Shutdown)

	auth, err := service.NewAuthService(&service.AuthServiceConfig{
		Tokens:       cfg.Auth.Tokens,
		TokenHashes:  cfg.Auth.TokenHashes,
		FailureRate:  cfg.Auth.FailureRate,
		FailureBurst: cfg.Auth.FailureBurst,
	}, metrics)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	log.Info("credential validator ready", "trusted_tokens", auth.TrustedCount())

	sessions := jobsession.NewHandler(auth, runner, jobsession.Config{
		MaxSessions:  cfg.Server.MaxSessions,
		AuthTimeout:  cfg.Server.AuthTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		PingInterval: cfg.Server.PingInterval,
	}, slogger, metrics)

	statusCfg := handler.Config{
		Mode:      cfg.Mode,
		StartedAt: time.Now(),
		Sessions:  sessions,
		Executor:  runner,
	}
	if certs != nil {
		statusCfg.Certificates = certs.manager
	}

	router := httpserver.NewRouter(&httpserver.RouterConfig{
		Sessions:    sessions,
		Status:      handler.New(statusCfg, slogger),
		Metrics:     metrics,
		Logger:      slogger,
		ConnRate:    cfg.Server.ConnRate,
		ConnBurst:   cfg.Server.ConnBurst,
		EnableAudit: true,
	})

	serverCfg := httpserver.Config{
		Address:           cfg.Server.Address,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	if certs != nil {
		serverCfg.TLS = certs.manager.TLSConfig()
	}
	httpServer := httpserver.New(serverCfg, router, slogger)

	// Stop accepting first, then cancel sessions, which kills their
	// workloads before the executor drains.
	shutdownHandler.OnShutdown("sessions", sessions.Shutdown)
	shutdownHandler.OnShutdown("http", httpServer.Shutdown)

	reload := reloadLogLevel(opts.configFile, opts.mode, slogger)
	shutdownHandler.OnReload("log-level", reload)
	if opts.configFile != "" {
		go watchConfig(ctx, opts.configFile, reload, slogger)
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Server.Address, "tls", httpServer.TLS())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	log.Info("server started")
	waitErr := shutdownHandler.Wait(ctx)

	select {
	case err := <-serveErr:
		return errors.Join(fmt.Errorf("listener: %w", err), waitErr)
	default:
	}
	if waitErr != nil {
		log.Error("shutdown error", "error", waitErr)
		return waitErr
	}
	log.Info("server stopped gracefully")
	return nil
}
