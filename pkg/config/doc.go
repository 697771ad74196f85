// Package config provides configuration management for Verge.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. A missing configuration
// file is not an error; the proxy runs entirely on defaults in that case.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention VERGE_SECTION_FIELD.
// For example:
//
//   - VERGE_SERVER_HTTP_PORT overrides server.http_port
//   - VERGE_STORAGE_DB_PATH overrides storage.db_path
//   - VERGE_TELEMETRY_LOGGING_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides
// earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// Production mode (server.production: true) is resolved during defaulting:
// it pins the listeners to ports 80/443 and enables HTTPS.
package config
