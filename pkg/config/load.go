package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// A missing file is not an error: defaults are returned so the proxy can run
// without any configuration file, matching the flag-driven defaults of the
// CLI. It applies default values and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention VERGE_SECTION_FIELD (e.g., VERGE_SERVER_HTTP_PORT) and always
// take precedence over file-based configuration.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv("VERGE_SERVER_HTTP_PORT"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Server.HTTPPort = p
		}
	}
	if val := os.Getenv("VERGE_SERVER_HTTPS_PORT"); val != "" {
		if p, err := strconv.Atoi(val); err == nil {
			cfg.Server.HTTPSPort = p
		}
	}
	if val := os.Getenv("VERGE_SERVER_ENABLE_HTTPS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Server.EnableHTTPS = b
		}
	}
	if val := os.Getenv("VERGE_SERVER_FORCE_HTTPS"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Server.ForceHTTPS = b
		}
	}
	if val := os.Getenv("VERGE_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Server.ShutdownTimeout = d
		}
	}
	if val := os.Getenv("VERGE_STORAGE_DB_PATH"); val != "" {
		cfg.Storage.DBPath = val
	}
	if val := os.Getenv("VERGE_CERTS_DIR"); val != "" {
		cfg.Certs.Dir = val
	}
	if val := os.Getenv("VERGE_CERTS_ACME_DIRECTORY_URL"); val != "" {
		cfg.Certs.ACMEDirectoryURL = val
	}
	if val := os.Getenv("VERGE_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("VERGE_TELEMETRY_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}
}
