package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/solstice-hq/aegis/pkg/admission"
	"github.com/solstice-hq/aegis/pkg/breaker"
	"github.com/solstice-hq/aegis/pkg/config"
	"github.com/solstice-hq/aegis/pkg/gateway"
	"github.com/solstice-hq/aegis/pkg/journal"
	"github.com/solstice-hq/aegis/pkg/server"
	"github.com/solstice-hq/aegis/pkg/telemetry/logging"
	"github.com/solstice-hq/aegis/pkg/telemetry/metrics"
	"github.com/solstice-hq/aegis/pkg/upstream"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Aegis gateway",
	Long: `Start the Aegis gateway with the specified configuration.

Each configured endpoint gets its own circuit breaker, admission limiter,
and coalescing registry. The admin server exposes state, health, recent
call outcomes, and Prometheus metrics.

Examples:
  # Start with default config
  aegis run

  # Start with custom config
  aegis run --config /etc/aegis/config.yaml

  # Override admin listen address
  aegis run --listen 0.0.0.0:9090

  # Validate config without starting
  aegis run --dry-run`,
	RunE: runGateway,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override admin listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runGateway(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.New(logging.Config{
		Level:     cfg.Telemetry.Logging.Level,
		Format:    cfg.Telemetry.Logging.Format,
		AddSource: cfg.Telemetry.Logging.AddSource,
	})
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.Config{
			Namespace: cfg.Telemetry.Metrics.Namespace,
		}, nil)
	}

	// Journal and retention
	var jnl *journal.Journal
	var retention *journal.Retention
	if cfg.Journal.Enabled {
		if dir := filepath.Dir(cfg.Journal.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
		jnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer jnl.Close()

		retention, err = journal.NewRetention(jnl, journal.RetentionConfig{
			Schedule: cfg.Journal.RetentionSchedule,
			MaxAge:   cfg.Journal.RetentionMaxAge,
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("failed to set up journal retention: %w", err)
		}
		retention.Start()
		defer retention.Stop()

		logger.Info("call journal opened",
			"path", cfg.Journal.Path,
			"retention_max_age", cfg.Journal.RetentionMaxAge.String())
	}

	// Gateways, one per configured endpoint
	gateways := make(map[string]*gateway.Gateway, len(cfg.Endpoints))
	monitors := make([]*gateway.Monitor, 0, len(cfg.Endpoints))
	for name, ep := range cfg.Endpoints {
		gwOpts := []gateway.Option{gateway.WithLogger(logger)}
		if collector != nil {
			gwOpts = append(gwOpts, gateway.WithMetrics(collector))
		}
		if jnl != nil {
			gwOpts = append(gwOpts, gateway.WithJournal(jnl))
		}

		gw := gateway.New(gateway.Config{
			Endpoint: upstream.Endpoint{
				Name:           name,
				BaseURL:        ep.BaseURL,
				CompletionPath: ep.CompletionPath,
				HealthPath:     ep.HealthPath,
				APIKey:         ep.APIKey,
				Timeout:        ep.Timeout,
			},
			Breaker: breaker.Settings{
				FailureRateThreshold: ep.Breaker.FailureRateThreshold,
				MinimumCalls:         ep.Breaker.MinimumCalls,
				Window:               ep.Breaker.Window,
				Buckets:              ep.Breaker.Buckets,
				Cooldown:             ep.Breaker.Cooldown,
			},
			Admission: admission.Config{
				Capacity:     ep.Admission.Capacity,
				MaxQueue:     ep.Admission.MaxQueue,
				QueueTimeout: ep.Admission.QueueTimeout,
			},
			CoalescingGrace: ep.Coalescing.GraceWindow,
		}, gwOpts...)
		gateways[name] = gw
		defer gw.Close()

		if ep.HealthInterval > 0 {
			monitors = append(monitors, gw.StartMonitor(ctx, ep.HealthInterval))
		}

		logger.Info("endpoint configured",
			"endpoint", name,
			"base_url", ep.BaseURL,
			"capacity", ep.Admission.Capacity,
			"api_key", logging.RedactAPIKey(ep.APIKey))
	}
	defer func() {
		for _, m := range monitors {
			m.Stop()
		}
	}()

	// Configuration watcher. Endpoint topology changes need a restart; the
	// watcher only picks up log level changes and warns about the rest.
	watcher, err := config.NewWatcher(cfgFile, logger)
	if err == nil {
		go func() {
			_ = watcher.Watch(ctx, func(next *config.Config) {
				if next.Telemetry.Logging.Level != cfg.Telemetry.Logging.Level {
					if l, lerr := logging.New(logging.Config{
						Level:     next.Telemetry.Logging.Level,
						Format:    next.Telemetry.Logging.Format,
						AddSource: next.Telemetry.Logging.AddSource,
					}); lerr == nil {
						slog.SetDefault(l)
						logger.Info("log level changed", "level", next.Telemetry.Logging.Level)
					}
				}
				if !endpointsEqual(cfg.Endpoints, next.Endpoints) {
					logger.Warn("endpoint configuration changed on disk, restart to apply")
				}
				cfg = next
			})
		}()
		defer watcher.Stop()
	} else {
		logger.Warn("configuration watcher unavailable", "error", err)
	}

	fmt.Printf("✓ Aegis %s ready (%d endpoints)\n", Version, len(gateways))

	srvOpts := []server.Option{server.WithLogger(logger)}
	if jnl != nil {
		srvOpts = append(srvOpts, server.WithJournal(jnl))
	}
	if collector != nil {
		srvOpts = append(srvOpts, server.WithMetricsHandler(collector.Handler(), cfg.Telemetry.Metrics.Path))
	}

	srv := server.NewServer(&cfg.Server, gateways, srvOpts...)
	return srv.Start(ctx)
}

// endpointsEqual reports whether two endpoint maps are identical.
func endpointsEqual(a, b map[string]config.EndpointConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for name, ea := range a {
		eb, ok := b[name]
		if !ok || ea != eb {
			return false
		}
	}
	return true
}
