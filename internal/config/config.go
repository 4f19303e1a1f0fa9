// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package config loads Dumpvault configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values from defaultConfig()
//  2. Config File: optional YAML file (CONFIG_PATH, ./config.yaml, /etc/dumpvault/config.yaml)
//  3. Environment Variables: whitelisted variables override any setting
//
// Database and SMTP passwords are only ever handed to the process runner and
// the delivery channels and are never logged.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Database    DatabaseConfig    `koanf:"database"`
	Storage     StorageConfig     `koanf:"storage"`
	Process     ProcessConfig     `koanf:"process"`
	Compression CompressionConfig `koanf:"compression"`
	Retention   RetentionConfig   `koanf:"retention"`
	Schedules   []ScheduleConfig  `koanf:"schedules"`
	Delivery    DeliveryConfig    `koanf:"delivery"`
	Events      EventsConfig      `koanf:"events"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// CORSOrigins is empty by default, which disables cross-origin access.
	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig describes the PostgreSQL database being backed up.
type DatabaseConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	SSLMode  string `koanf:"sslmode"`

	// Preflight pings the database with pgx before every dump.
	Preflight bool `koanf:"preflight"`

	// DumpCommand and RestoreCommand name the client binaries.
	DumpCommand    string `koanf:"dump_command"`
	RestoreCommand string `koanf:"restore_command"`
}

// DSN returns a pgx connection string. The password is included, so the
// result must never be logged.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   d.Host + ":" + strconv.Itoa(d.Port),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	if d.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", d.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// StorageConfig configures the artifact store.
type StorageConfig struct {
	// Dir is the directory holding backup artifacts.
	Dir string `koanf:"dir"`

	// Ledger selects where verification status is recorded: sidecar or badger.
	Ledger string `koanf:"ledger"`

	// LedgerDir is the BadgerDB directory when Ledger is badger.
	LedgerDir string `koanf:"ledger_dir"`
}

// ProcessConfig configures external process execution.
type ProcessConfig struct {
	// Timeout bounds every external tool invocation.
	Timeout time.Duration `koanf:"timeout"`
}

// CompressionConfig configures the compression stage.
type CompressionConfig struct {
	// Enabled is the default for on-demand requests that omit compress.
	Enabled bool `koanf:"enabled"`

	// Method is native (in-process gzip) or external (gzip binary).
	Method string `koanf:"method"`

	// Level is the gzip level (1-9) for the native method.
	Level int `koanf:"level"`

	// Command is the binary used by the external method.
	Command string `koanf:"command"`
}

// RetentionConfig configures artifact expiry.
type RetentionConfig struct {
	// MaxAgeDays is the global age limit used by scheduled cleanup.
	MaxAgeDays int `koanf:"max_age_days"`

	// KeepLastVerified exempts the newest verified artifact from expiry.
	KeepLastVerified bool `koanf:"keep_last_verified"`

	// CleanupSchedule is a 5-field cron expression for scheduled cleanup.
	CleanupSchedule string `koanf:"cleanup_schedule"`

	// CleanupEnabled toggles scheduled cleanup.
	CleanupEnabled bool `koanf:"cleanup_enabled"`
}

// ScheduleConfig describes one recurring backup.
type ScheduleConfig struct {
	Name       string   `koanf:"name"`
	Enabled    bool     `koanf:"enabled"`
	Frequency  string   `koanf:"frequency"`
	TimeOfDay  string   `koanf:"time_of_day"`
	Weekday    string   `koanf:"weekday"`
	DayOfMonth int      `koanf:"day_of_month"`
	Cron       string   `koanf:"cron"`
	Recipients []string `koanf:"recipients"`
	Timezone   string   `koanf:"timezone"`
}

// DeliveryConfig configures artifact delivery.
type DeliveryConfig struct {
	// DefaultRecipients is used when a request asks for delivery without naming recipients.
	DefaultRecipients []string `koanf:"default_recipients"`

	MaxRetries    int           `koanf:"max_retries"`
	BaseDelay     time.Duration `koanf:"base_delay"`
	MaxDelay      time.Duration `koanf:"max_delay"`
	Parallelism   int           `koanf:"parallelism"`
	RatePerSecond float64       `koanf:"rate_per_second"`

	Email   EmailConfig   `koanf:"email"`
	Webhook WebhookConfig `koanf:"webhook"`
	S3      S3Config      `koanf:"s3"`
}

// EmailConfig configures SMTP delivery.
type EmailConfig struct {
	Enabled         bool   `koanf:"enabled"`
	Host            string `koanf:"host"`
	Port            int    `koanf:"port"`
	Username        string `koanf:"username"`
	Password        string `koanf:"password"`
	From            string `koanf:"from"`
	FromName        string `koanf:"from_name"`
	UseTLS          bool   `koanf:"use_tls"`
	MaxAttachmentMB int    `koanf:"max_attachment_mb"`
	SubjectPrefix   string `koanf:"subject_prefix"`
}

// WebhookConfig configures webhook notification delivery.
type WebhookConfig struct {
	Enabled       bool          `koanf:"enabled"`
	Timeout       time.Duration `koanf:"timeout"`
	Authorization string        `koanf:"authorization"`
}

// S3Config configures object storage delivery.
type S3Config struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Region         string   `koanf:"region"`
	AccessKey      string   `koanf:"access_key"`
	SecretKey      string   `koanf:"secret_key"`
	ForcePathStyle bool     `koanf:"force_path_style"`
	AgeRecipients  []string `koanf:"age_recipients"`
}

// EventsConfig configures lifecycle event publishing.
type EventsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`

	// Embedded starts an in-process NATS server and publishes to it.
	Embedded     bool   `koanf:"embedded"`
	EmbeddedHost string `koanf:"embedded_host"`
	EmbeddedPort int    `koanf:"embedded_port"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      0, // downloads of large artifacts must not be cut off
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           5432,
			User:           "postgres",
			Name:           "postgres",
			SSLMode:        "prefer",
			DumpCommand:    "pg_dump",
			RestoreCommand: "pg_restore",
		},
		Storage: StorageConfig{
			Dir:    "/data/backups",
			Ledger: "sidecar",
		},
		Process: ProcessConfig{
			Timeout: 30 * time.Minute,
		},
		Compression: CompressionConfig{
			Enabled: true,
			Method:  "native",
			Level:   6,
			Command: "gzip",
		},
		Retention: RetentionConfig{
			MaxAgeDays:      7,
			CleanupSchedule: "0 3 * * 0",
			CleanupEnabled:  true,
		},
		Schedules: []ScheduleConfig{
			{
				Name:      "daily",
				Enabled:   true,
				Frequency: "daily",
				TimeOfDay: "02:00",
			},
		},
		Delivery: DeliveryConfig{
			DefaultRecipients: []string{},
			MaxRetries:        3,
			BaseDelay:         time.Second,
			MaxDelay:          30 * time.Second,
			Parallelism:       4,
			RatePerSecond:     2,
			Email: EmailConfig{
				Port:            587,
				FromName:        "Dumpvault",
				UseTLS:          true,
				MaxAttachmentMB: 20,
				SubjectPrefix:   "[dumpvault]",
			},
			Webhook: WebhookConfig{
				Enabled: true,
				Timeout: 30 * time.Second,
			},
			S3: S3Config{
				Region:         "us-east-1",
				ForcePathStyle: true,
			},
		},
		Events: EventsConfig{
			NATSURL:       "nats://127.0.0.1:4222",
			SubjectPrefix: "dumpvault.backup",
			EmbeddedHost:  "127.0.0.1",
			EmbeddedPort:  4222,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Default returns the built-in configuration without reading files or env.
func Default() *Config {
	return defaultConfig()
}
