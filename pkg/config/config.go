package config

import "time"

// Config is the root configuration structure for Verge.
// It contains all configuration sections for the proxy server, the mapping
// store, certificate management, and telemetry.
type Config struct {
	// Server contains proxy listener configuration including ports,
	// HTTPS behavior, and shutdown handling.
	Server ServerConfig `yaml:"server"`

	// Storage contains configuration for the persisted mapping store.
	Storage StorageConfig `yaml:"storage"`

	// Certs contains configuration for certificate management and the
	// ACME challenge responder.
	Certs CertsConfig `yaml:"certs"`

	// Telemetry contains configuration for logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the proxy listeners.
type ServerConfig struct {
	// HTTPPort is the port the plain HTTP listener binds to.
	// Default: 8080
	HTTPPort int `yaml:"http_port"`

	// HTTPSPort is the port the TLS listener binds to when HTTPS is enabled.
	// Default: 8443
	HTTPSPort int `yaml:"https_port"`

	// EnableHTTPS starts a TLS listener alongside the HTTP listener,
	// serving certificates from the certificate directory.
	// Default: false
	EnableHTTPS bool `yaml:"enable_https"`

	// ForceHTTPS redirects plain HTTP requests to HTTPS with a 301.
	// Requests already carrying X-Forwarded-Proto: https (or equivalent)
	// are not redirected.
	// Default: false
	ForceHTTPS bool `yaml:"force_https"`

	// Production overrides HTTPPort/HTTPSPort to 80/443 and enables HTTPS.
	// Default: false
	Production bool `yaml:"production"`

	// ShutdownTimeout is the maximum duration to wait for in-flight
	// requests during graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StorageConfig contains configuration for the mapping store.
type StorageConfig struct {
	// DBPath is the path to the SQLite database file holding the
	// mappings table. Parent directories are created if missing.
	// Default: "./data/current.db"
	DBPath string `yaml:"db_path"`
}

// CertsConfig contains configuration for the certificate manager.
type CertsConfig struct {
	// Dir is the directory holding certificate/key pairs. A default
	// self-signed localhost pair is generated here on startup if absent.
	// Default: "./certs"
	Dir string `yaml:"dir"`

	// ACMEDirectoryURL is the ACME directory endpoint used by an external
	// issuance client. Only recorded here; the proxy serves HTTP-01
	// challenges but does not run the issuance protocol itself.
	// Default: "https://acme-v02.api.letsencrypt.org/directory"
	ACMEDirectoryURL string `yaml:"acme_directory_url"`

	// JanitorSchedule is a cron expression controlling how often expired
	// ACME challenges and stale rate-limit entries are swept. Empty
	// disables the janitor.
	// Default: "0 * * * *" (hourly)
	JanitorSchedule string `yaml:"janitor_schedule"`
}

// TelemetryConfig contains logging and metrics configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", or "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format: "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ListenAddress is the address the /metrics endpoint binds to.
	// Kept separate from the proxy listeners so the proxied HTTP surface
	// stays unchanged.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`
}
