// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/log"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/tomtom215/dumpvault/internal/config"
)

const (
	// DefaultPostgresImage matches the oldest server the client tools support.
	DefaultPostgresImage = "postgres:16-alpine"

	postgresPort     = "5432/tcp"
	postgresUser     = "dumpvault"
	postgresPassword = "dumpvault-test"
	postgresDB       = "app"
)

// PostgresContainer is a disposable PostgreSQL server.
type PostgresContainer struct {
	testcontainers.Container
	Host string
	Port int
}

// PostgresContainer must stay usable wherever a plain container is expected.
var _ testcontainers.Container = (*PostgresContainer)(nil)

// PostgresOption configures NewPostgresContainer.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	image        string
	startTimeout time.Duration
	logger       log.Logger
}

// WithPostgresImage overrides the image.
func WithPostgresImage(image string) PostgresOption {
	return func(c *postgresConfig) { c.image = image }
}

// WithContainerLogger routes testcontainers output to l.
func WithContainerLogger(l log.Logger) PostgresOption {
	return func(c *postgresConfig) { c.logger = l }
}

// NewPostgresContainer starts a server and waits until it accepts
// connections. The postgres image logs the ready line twice: once for the
// init server and once for the real one.
func NewPostgresContainer(ctx context.Context, opts ...PostgresOption) (*PostgresContainer, error) {
	cfg := &postgresConfig{image: DefaultPostgresImage, startTimeout: 90 * time.Second, logger: log.Default()}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{postgresPort},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort(postgresPort),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
		Logger:           cfg.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, postgresPort)
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("get mapped port: %w", err)
	}
	p, err := strconv.Atoi(port.Port())
	if err != nil {
		container.Terminate(ctx) //nolint:errcheck
		return nil, fmt.Errorf("parse mapped port: %w", err)
	}

	return &PostgresContainer{Container: container, Host: host, Port: p}, nil
}

// DatabaseConfig returns connection settings for the container with the
// client tools taken from PATH.
func (c *PostgresContainer) DatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Host:           c.Host,
		Port:           c.Port,
		User:           postgresUser,
		Password:       postgresPassword,
		Name:           postgresDB,
		SSLMode:        "disable",
		Preflight:      true,
		DumpCommand:    "pg_dump",
		RestoreCommand: "pg_restore",
	}
}

// ExecSQL runs sql statements on a fresh connection.
func (c *PostgresContainer) ExecSQL(ctx context.Context, statements ...string) error {
	cfg := c.DatabaseConfig()
	conn, err := pgx.Connect(ctx, cfg.DSN())
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	for _, sql := range statements {
		if _, err := conn.Exec(ctx, sql); err != nil {
			return fmt.Errorf("exec %q: %w", sql, err)
		}
	}
	return nil
}

// QueryInt runs a query returning a single integer.
func (c *PostgresContainer) QueryInt(ctx context.Context, sql string) (int, error) {
	cfg := c.DatabaseConfig()
	conn, err := pgx.Connect(ctx, cfg.DSN())
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	var n int
	if err := conn.QueryRow(ctx, sql).Scan(&n); err != nil {
		return 0, fmt.Errorf("query %q: %w", sql, err)
	}
	return n, nil
}
