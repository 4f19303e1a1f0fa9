// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

//go:build integration

package backup_test

import (
	"context"
	"testing"
	"time"

	"github.com/tomtom215/dumpvault/internal/backup"
	"github.com/tomtom215/dumpvault/internal/config"
	"github.com/tomtom215/dumpvault/internal/database"
	"github.com/tomtom215/dumpvault/internal/process"
	"github.com/tomtom215/dumpvault/internal/store"
	"github.com/tomtom215/dumpvault/internal/testinfra"
)

// TestPostgresRoundTrip dumps a real database, damages it, and restores it.
func TestPostgresRoundTrip(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	testinfra.SkipIfMissingTools(t, "pg_dump", "pg_restore")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pg, err := testinfra.NewPostgresContainer(ctx, testinfra.WithContainerLogger(testinfra.NewContainerLogger(t)))
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	testinfra.TerminateOnCleanup(t, pg)

	if err := pg.ExecSQL(ctx,
		"CREATE TABLE tickets (id serial PRIMARY KEY, title text NOT NULL)",
		"INSERT INTO tickets (title) SELECT 'ticket ' || g FROM generate_series(1, 250) g",
	); err != nil {
		t.Fatalf("failed to seed: %v", err)
	}

	st, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	dbCfg := pg.DatabaseConfig()
	orch, err := backup.New(backup.Options{
		Store:     st,
		Runner:    process.NewExecRunner(process.WithTimeout(2 * time.Minute)),
		Probe:     database.NewProbe(dbCfg.DSN(), 10*time.Second),
		Database:  dbCfg,
		Retention: config.RetentionConfig{MaxAgeDays: 7},
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	res, err := orch.CreateAndPublish(ctx, backup.PublishOptions{Compress: true, Verify: true, Trigger: "integration"})
	if err != nil {
		t.Fatalf("CreateAndPublish() error = %v", err)
	}
	a := res.Artifact
	if !a.Compressed || a.Verified != store.VerifyValid {
		t.Fatalf("expected a compressed valid artifact, got %+v", a)
	}
	if res.Verification == nil || res.Verification.Entries == 0 {
		t.Error("verification should list TOC entries")
	}

	if err := pg.ExecSQL(ctx, "DELETE FROM tickets WHERE id > 10"); err != nil {
		t.Fatalf("failed to damage table: %v", err)
	}

	if err := orch.RestoreFrom(ctx, a); err != nil {
		t.Fatalf("RestoreFrom() error = %v", err)
	}

	n, err := pg.QueryInt(ctx, "SELECT count(*) FROM tickets")
	if err != nil {
		t.Fatalf("count after restore: %v", err)
	}
	if n != 250 {
		t.Errorf("rows after restore = %d, want 250", n)
	}
}

// TestPreflightFailsWithoutDatabase checks the pgx probe stops a dump
// before pg_dump runs.
func TestPreflightFailsWithoutDatabase(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pg, err := testinfra.NewPostgresContainer(ctx)
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	dbCfg := pg.DatabaseConfig()
	if err := pg.Terminate(ctx); err != nil {
		t.Fatalf("failed to stop postgres: %v", err)
	}

	st, err := store.New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	orch, err := backup.New(backup.Options{
		Store:    st,
		Runner:   process.NewExecRunner(),
		Probe:    database.NewProbe(dbCfg.DSN(), 2*time.Second),
		Database: dbCfg,
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}

	if _, err := orch.CreateBackup(ctx); err == nil {
		t.Fatal("expected the preflight ping to fail")
	}
	if list, _ := orch.List(ctx); len(list) != 0 {
		t.Errorf("no artifact should be left behind, got %d", len(list))
	}
}
