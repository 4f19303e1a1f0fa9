// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are probed in order when CONFIG_PATH does not name an
// existing file.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/dumpvault/config.yaml",
	"/etc/dumpvault/config.yml",
}

// ConfigPathEnvVar names the environment variable holding an explicit config path.
const ConfigPathEnvVar = "CONFIG_PATH"

// listKeys take comma-separated values when set from the environment.
var listKeys = map[string]bool{
	"server.cors_origins":         true,
	"delivery.default_recipients": true,
	"delivery.s3.age_recipients":  true,
}

// envMappings maps whitelisted environment variables (lower-cased) to koanf paths.
// Unmapped variables are ignored so unrelated environment does not leak into config.
var envMappings = map[string]string{
	// Server
	"http_host":           "server.host",
	"http_port":           "server.port",
	"http_read_timeout":   "server.read_timeout",
	"http_write_timeout":  "server.write_timeout",
	"shutdown_timeout":    "server.shutdown_timeout",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	// Database (same names the application containers already use)
	"db_host":         "database.host",
	"db_port":         "database.port",
	"db_user":         "database.user",
	"db_password":     "database.password",
	"db_name":         "database.name",
	"db_sslmode":      "database.sslmode",
	"db_preflight":    "database.preflight",
	"pg_dump_path":    "database.dump_command",
	"pg_restore_path": "database.restore_command",

	// Storage
	"backup_dir":        "storage.dir",
	"backup_ledger":     "storage.ledger",
	"backup_ledger_dir": "storage.ledger_dir",

	// Process runner
	"backup_process_timeout": "process.timeout",

	// Compression
	"backup_compress":           "compression.enabled",
	"backup_compression_method": "compression.method",
	"backup_compression_level":  "compression.level",
	"gzip_path":                 "compression.command",

	// Retention
	"retention_max_age_days":     "retention.max_age_days",
	"retention_keep_last_valid":  "retention.keep_last_verified",
	"retention_cleanup_schedule": "retention.cleanup_schedule",
	"retention_cleanup_enabled":  "retention.cleanup_enabled",

	// Delivery
	"backup_recipients":      "delivery.default_recipients",
	"delivery_max_retries":   "delivery.max_retries",
	"delivery_parallelism":   "delivery.parallelism",
	"delivery_rate":          "delivery.rate_per_second",
	"smtp_enabled":           "delivery.email.enabled",
	"smtp_host":              "delivery.email.host",
	"smtp_port":              "delivery.email.port",
	"smtp_user":              "delivery.email.username",
	"smtp_password":          "delivery.email.password",
	"smtp_from":              "delivery.email.from",
	"smtp_from_name":         "delivery.email.from_name",
	"smtp_use_tls":           "delivery.email.use_tls",
	"smtp_max_attachment_mb": "delivery.email.max_attachment_mb",
	"webhook_enabled":        "delivery.webhook.enabled",
	"webhook_authorization":  "delivery.webhook.authorization",
	"s3_enabled":             "delivery.s3.enabled",
	"s3_endpoint":            "delivery.s3.endpoint",
	"s3_region":              "delivery.s3.region",
	"s3_access_key":          "delivery.s3.access_key",
	"s3_secret_key":          "delivery.s3.secret_key",
	"s3_force_path_style":    "delivery.s3.force_path_style",
	"s3_age_recipients":      "delivery.s3.age_recipients",

	// Events
	"events_enabled":        "events.enabled",
	"nats_url":              "events.nats_url",
	"events_subject_prefix": "events.subject_prefix",
	"nats_embedded":         "events.embedded",
	"nats_embedded_host":    "events.embedded_host",
	"nats_embedded_port":    "events.embedded_port",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// Load builds the configuration from defaults, an optional YAML file and the
// environment, then validates it. Later sources win.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}
	if path, ok := configFile(); ok {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.ProviderWithValue("", ".", envValue), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func configFile() (string, bool) {
	candidates := DefaultConfigPaths
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		candidates = append([]string{p}, candidates...)
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p, true
		}
	}
	return "", false
}

// envValue maps one environment variable to its koanf key. Unmapped
// variables get an empty key and are dropped by the provider.
func envValue(key, value string) (string, interface{}) {
	path := envTransformFunc(key)
	if !listKeys[path] {
		return path, value
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return path, items
}

// envTransformFunc returns the koanf path for an environment variable, or ""
// when the variable is not part of the configuration.
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}
