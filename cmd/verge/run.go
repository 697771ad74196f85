package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"verge-hq/verge/pkg/certs"
	"verge-hq/verge/pkg/config"
	"verge-hq/verge/pkg/proxy"
	"verge-hq/verge/pkg/server"
	"verge-hq/verge/pkg/store"
	"verge-hq/verge/pkg/telemetry/metrics"
)

var runFlags struct {
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Verge proxy server",
	Long: `Start the Verge proxy server with the specified configuration.

The server listens on the configured HTTP port (and HTTPS port when enabled)
and routes every request through the mapping database.

Examples:
  # Start with default config
  verge run

  # Start with custom config
  verge run --config /etc/verge/config.yaml

  # Validate config without starting the server
  verge run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the server")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cfg.Telemetry.Logging)

	if runFlags.dryRun {
		fmt.Println("Configuration valid")
		return nil
	}

	slog.Info("starting verge",
		"version", Version,
		"http_port", cfg.Server.HTTPPort,
		"https_enabled", cfg.Server.EnableHTTPS,
		"db_path", cfg.Storage.DBPath,
	)

	mappings, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open mapping store: %w", err)
	}
	defer mappings.Close()

	// Certificate management is required even for plain HTTP: the ACME
	// responder and the challenge registry live on the manager.
	certManager, err := certs.NewManager(cfg.Certs.Dir, cfg.Certs.ACMEDirectoryURL)
	if err != nil {
		return fmt.Errorf("failed to initialize certificate manager: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	watcher, err := certs.NewWatcher(certManager)
	if err != nil {
		slog.Warn("certificate watcher unavailable, renewed certificates require a restart", "error", err)
	} else {
		watcher.Start(ctx)
	}

	janitor := certs.NewJanitor(certManager, cfg.Certs.JanitorSchedule)
	if err := janitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start certificate janitor: %w", err)
	}

	var collector *metrics.Collector
	var opts server.Options
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector()
		opts = server.Options{
			Collector:   collector,
			MetricsAddr: cfg.Telemetry.Metrics.ListenAddress,
		}
	}

	handler := proxy.NewHandler(
		proxy.NewRouter(mappings),
		certManager,
		cfg.Server.ForceHTTPS,
		collector,
	)

	srv := server.NewServer(&cfg.Server, handler, certManager, opts)
	return srv.Start(ctx)
}

// setupLogging installs the process-wide default logger.
func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}
