package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"

	"mercator-hq/luthien/pkg/audit"
	"mercator-hq/luthien/pkg/cli"
	"mercator-hq/luthien/pkg/config"
	"mercator-hq/luthien/pkg/policy/manager"
	"mercator-hq/luthien/pkg/proxy"
	sectls "mercator-hq/luthien/pkg/security/tls"
	"mercator-hq/luthien/pkg/server"
	"mercator-hq/luthien/pkg/telemetry/health"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runFlags struct {
	listenAddress string
	logLevel      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Luthien proxy server",
	Long: `Start the proxy with the specified configuration.

The root policy tree is loaded from the configured store before the server
starts listening. With policy.watch or policy.reload_schedule set, a failed
first load is logged and the proxy answers 503 until a later reload succeeds;
otherwise it is fatal.

Examples:
  # Start with a config file
  luthien run --config /etc/luthien/config.yaml

  # Override listen address
  luthien run --listen 0.0.0.0:8080`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Proxy.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	config.SetConfig(cfg)

	logger, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// serve wires every component and blocks until ctx is canceled or a
// component fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close()

	mgr := manager.New(comps.loader(), comps.store, manager.Options{
		Root:    cfg.Policy.Root,
		Metrics: comps.metrics,
		Logger:  logger,
	})
	watch := watchOptions(cfg)
	if err := mgr.Reload(ctx, manager.TriggerStartup); err != nil {
		if watch.WatchPath == "" && watch.Schedule == "" {
			return err
		}
		logger.Error("initial policy load failed; waiting for a reload", "error", err)
	}

	checker := health.New(0)
	checker.RegisterCheck("policy_tree", mgr.Check)
	for name, ping := range comps.pingers {
		checker.RegisterCheck(name, ping)
	}

	orchestrator := proxy.NewOrchestrator(mgr, proxy.Options{
		Logger:       logger,
		Metrics:      comps.metrics,
		Tracer:       comps.tracer,
		MaxBodyBytes: cfg.Proxy.MaxBodyBytes,
	})

	var tlsCfg *tls.Config
	if cfg.Proxy.TLS.Enabled {
		reloader := sectls.NewReloader(&cfg.Proxy.TLS, logger)
		if err := reloader.Start(ctx); err != nil {
			return cli.NewConfigError("proxy.tls", err.Error())
		}
		tlsCfg = sectls.NewServerConfig(&cfg.Proxy.TLS, reloader)
	}

	srv := server.New(&cfg.Proxy, &cfg.Telemetry, server.Options{
		Chat:    orchestrator,
		Health:  checker,
		Metrics: comps.metrics,
		TLS:     tlsCfg,
		Logger:  logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	g.Go(func() error {
		return mgr.Run(gctx, watch)
	})

	if pruner, ok := comps.audit.(audit.Pruner); ok {
		retention := audit.NewScheduler(pruner, cfg.Audit.RetentionDays, cfg.Audit.RetentionSchedule, logger)
		if err := retention.Start(gctx); err != nil {
			logger.Warn("failed to start audit retention", "error", err)
		} else {
			defer retention.Stop()
		}
	}

	logger.Info("luthien started",
		"version", Version,
		"listen_address", cfg.Proxy.ListenAddress,
		"policy_store", cfg.Policy.Store,
		"policy_root", cfg.Policy.Root,
	)

	err = g.Wait()
	logger.Info("luthien stopped")
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("component failed: %w", err)
	}
	return nil
}

// watchOptions derives the reload triggers from the policy configuration.
func watchOptions(cfg *config.Config) manager.WatchOptions {
	opts := manager.WatchOptions{
		Debounce: cfg.Policy.DebounceInterval,
		Schedule: cfg.Policy.ReloadSchedule,
	}
	if cfg.Policy.Watch && cfg.Policy.Store == "file" {
		opts.WatchPath = cfg.Policy.FilePath
	}
	return opts
}
