// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Validate checks that the configuration is usable. Cadence syntax of the
// schedules is checked separately by the schedule package at startup.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateProcess(); err != nil {
		return err
	}
	if err := c.validateRetention(); err != nil {
		return err
	}
	if err := c.validateDelivery(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got: %d", c.Server.Port)
	}
	if !c.Server.RateLimitDisabled && c.Server.RateLimitRequests < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1, got: %d", c.Server.RateLimitRequests)
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Dir == "" {
		return fmt.Errorf("BACKUP_DIR is required")
	}
	if !filepath.IsAbs(c.Storage.Dir) {
		return fmt.Errorf("BACKUP_DIR must be an absolute path, got: %s", c.Storage.Dir)
	}
	switch c.Storage.Ledger {
	case "sidecar":
	case "badger":
		if c.Storage.LedgerDir == "" {
			return fmt.Errorf("BACKUP_LEDGER_DIR is required when BACKUP_LEDGER=badger")
		}
	default:
		return fmt.Errorf("BACKUP_LEDGER must be 'sidecar' or 'badger', got: %s", c.Storage.Ledger)
	}
	return nil
}

func (c *Config) validateProcess() error {
	if c.Process.Timeout <= 0 {
		return fmt.Errorf("BACKUP_PROCESS_TIMEOUT must be positive, got: %s", c.Process.Timeout)
	}
	switch c.Compression.Method {
	case "native":
		if c.Compression.Level < 1 || c.Compression.Level > 9 {
			return fmt.Errorf("BACKUP_COMPRESSION_LEVEL must be between 1 and 9, got: %d", c.Compression.Level)
		}
	case "external":
		if c.Compression.Command == "" {
			return fmt.Errorf("GZIP_PATH is required when BACKUP_COMPRESSION_METHOD=external")
		}
	default:
		return fmt.Errorf("BACKUP_COMPRESSION_METHOD must be 'native' or 'external', got: %s", c.Compression.Method)
	}
	if c.Database.DumpCommand == "" || c.Database.RestoreCommand == "" {
		return fmt.Errorf("PG_DUMP_PATH and PG_RESTORE_PATH must not be empty")
	}
	return nil
}

func (c *Config) validateRetention() error {
	if c.Retention.MaxAgeDays < 1 {
		return fmt.Errorf("RETENTION_MAX_AGE_DAYS must be at least 1, got: %d", c.Retention.MaxAgeDays)
	}
	return nil
}

func (c *Config) validateDelivery() error {
	d := c.Delivery
	if d.MaxRetries < 0 {
		return fmt.Errorf("DELIVERY_MAX_RETRIES must not be negative, got: %d", d.MaxRetries)
	}
	if d.Email.Enabled {
		if d.Email.Host == "" || d.Email.From == "" {
			return fmt.Errorf("SMTP_HOST and SMTP_FROM are required when SMTP_ENABLED=true")
		}
		if d.Email.Port < 1 || d.Email.Port > 65535 {
			return fmt.Errorf("SMTP_PORT must be between 1 and 65535, got: %d", d.Email.Port)
		}
	}
	if d.S3.Enabled {
		if d.S3.Endpoint == "" {
			return fmt.Errorf("S3_ENDPOINT is required when S3_ENABLED=true")
		}
		if d.S3.AccessKey == "" || d.S3.SecretKey == "" {
			return fmt.Errorf("S3_ACCESS_KEY and S3_SECRET_KEY are required when S3_ENABLED=true")
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got: %s", c.Logging.Format)
	}
}
