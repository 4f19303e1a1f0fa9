// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package database checks connectivity to the PostgreSQL server whose data
// is being backed up. It never reads application data.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// Probe opens a short-lived connection per check.
type Probe struct {
	dsn     string
	timeout time.Duration
}

// NewProbe creates a Probe for dsn. The DSN carries the password and is
// never logged.
func NewProbe(dsn string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Probe{dsn: dsn, timeout: timeout}
}

// Ping connects, runs SELECT 1, and disconnects.
func (p *Probe) Ping(ctx context.Context) error {
	_, err := p.query(ctx, "SELECT 1::text")
	return err
}

// ServerVersion returns the server_version setting.
func (p *Probe) ServerVersion(ctx context.Context) (string, error) {
	return p.query(ctx, "SHOW server_version")
}

func (p *Probe) query(ctx context.Context, sql string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cfg, err := pgx.ParseConfig(p.dsn)
	if err != nil {
		return "", fmt.Errorf("parse database config: %w", err)
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("connect to %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	var out string
	if err := conn.QueryRow(ctx, sql).Scan(&out); err != nil {
		return "", fmt.Errorf("probe query: %w", err)
	}
	return out, nil
}
