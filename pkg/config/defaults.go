package config

import "time"

// DefaultACMEDirectoryURL is the public ACME endpoint used when none is
// configured.
const DefaultACMEDirectoryURL = "https://acme-v02.api.letsencrypt.org/directory"

// ApplyDefaults fills in default values for any unset configuration fields.
// It is called automatically by LoadConfig but can be used directly on a
// zero-value Config.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Server.HTTPSPort == 0 {
		cfg.Server.HTTPSPort = 8443
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "./data/current.db"
	}

	if cfg.Certs.Dir == "" {
		cfg.Certs.Dir = "./certs"
	}
	if cfg.Certs.ACMEDirectoryURL == "" {
		cfg.Certs.ACMEDirectoryURL = DefaultACMEDirectoryURL
	}
	if cfg.Certs.JanitorSchedule == "" {
		cfg.Certs.JanitorSchedule = "0 * * * *"
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = "127.0.0.1:9090"
	}

	// Production mode pins the listeners to the well-known ports and
	// forces HTTPS on.
	if cfg.Server.Production {
		cfg.Server.HTTPPort = 80
		cfg.Server.HTTPSPort = 443
		cfg.Server.EnableHTTPS = true
	}
}

// Default returns a Config populated entirely from defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
