package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first problem found.
func Validate(cfg *Config) error {
	if err := validatePort("server.http_port", cfg.Server.HTTPPort); err != nil {
		return err
	}
	if err := validatePort("server.https_port", cfg.Server.HTTPSPort); err != nil {
		return err
	}
	if cfg.Server.EnableHTTPS && cfg.Server.HTTPPort == cfg.Server.HTTPSPort {
		return fmt.Errorf("server.http_port and server.https_port must differ (both %d)", cfg.Server.HTTPPort)
	}
	if cfg.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("server.shutdown_timeout must not be negative")
	}

	if cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path must not be empty")
	}
	if cfg.Certs.Dir == "" {
		return fmt.Errorf("certs.dir must not be empty")
	}

	if cfg.Certs.JanitorSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Certs.JanitorSchedule); err != nil {
			return fmt.Errorf("certs.janitor_schedule is not a valid cron expression: %w", err)
		}
	}

	switch cfg.Telemetry.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("telemetry.logging.level must be one of debug, info, warn, error (got %q)",
			cfg.Telemetry.Logging.Level)
	}

	switch cfg.Telemetry.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("telemetry.logging.format must be json or text (got %q)",
			cfg.Telemetry.Logging.Format)
	}

	if cfg.Telemetry.Metrics.Enabled && cfg.Telemetry.Metrics.ListenAddress == "" {
		return fmt.Errorf("telemetry.metrics.listen_address must be set when metrics are enabled")
	}

	return nil
}

func validatePort(name string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be between 1 and 65535 (got %d)", name, port)
	}
	return nil
}
