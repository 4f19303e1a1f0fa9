// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
)

func newInMemoryBadger(t *testing.T) *badger.DB {
	t.Helper()
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestLedgerBackends(t *testing.T) {
	backends := map[string]func(t *testing.T) StatusLedger{
		"sidecar": func(t *testing.T) StatusLedger { return NewSidecarLedger(t.TempDir()) },
		"badger":  func(t *testing.T) StatusLedger { return NewBadgerLedger(newInMemoryBadger(t)) },
	}

	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			l := open(t)
			filename := "database-2026-03-01T02-00-00-000Z-aaaaaaaa.sql"

			v, err := l.Get(filename)
			if err != nil || v != nil {
				t.Fatalf("expected (nil, nil) for missing record, got %+v, %v", v, err)
			}

			mtime := time.Date(2026, 3, 1, 2, 0, 0, 123456789, time.UTC)
			want := &Verification{
				Filename:  filename,
				Status:    VerifyInvalid,
				Message:   "pg_restore: error: input file is too short",
				CheckedAt: time.Now().UTC(),
				SizeBytes: 42,
				ModTime:   mtime,
			}
			if err := l.Put(want); err != nil {
				t.Fatalf("Put() error = %v", err)
			}

			got, err := l.Get(filename)
			if err != nil || got == nil {
				t.Fatalf("Get() = %+v, %v", got, err)
			}
			if got.Status != VerifyInvalid || got.Message != want.Message {
				t.Errorf("unexpected record: %+v", got)
			}
			if !got.matches(42, mtime) {
				t.Error("fingerprint should round-trip with nanosecond precision")
			}

			if err := l.Delete(filename); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if err := l.Delete(filename); err != nil {
				t.Errorf("deleting a missing record should succeed, got %v", err)
			}
			if v, _ := l.Get(filename); v != nil {
				t.Errorf("expected record gone, got %+v", v)
			}
		})
	}
}

func TestOpenLedger(t *testing.T) {
	dir := t.TempDir()

	l, err := OpenLedger("", dir, "")
	if err != nil {
		t.Fatalf("OpenLedger(sidecar) error = %v", err)
	}
	if _, ok := l.(*SidecarLedger); !ok {
		t.Errorf("expected sidecar ledger, got %T", l)
	}

	ledgerDir := filepath.Join(dir, "ledger")
	l, err = OpenLedger(LedgerBadger, dir, ledgerDir)
	if err != nil {
		t.Fatalf("OpenLedger(badger) error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, err := os.Stat(ledgerDir); err != nil {
		t.Errorf("badger dir should exist: %v", err)
	}

	if _, err := OpenLedger("sqlite", dir, ""); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestStoreWithBadgerLedger(t *testing.T) {
	s, err := New(t.TempDir(), NewBadgerLedger(newInMemoryBadger(t)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	name := "database-2026-03-01T02-00-00-000Z-aaaaaaaa.sql"
	writeArtifact(t, s, name, "dump", time.Now())

	a, _ := s.Get(t.Context(), name)
	if err := s.RecordVerification(a, VerifyValid, "", ""); err != nil {
		t.Fatalf("RecordVerification() error = %v", err)
	}
	a, _ = s.Get(t.Context(), name)
	if a.Verified != VerifyValid {
		t.Errorf("expected valid, got %s", a.Verified)
	}

	entries, _ := os.ReadDir(s.Dir())
	if len(entries) != 1 {
		t.Errorf("badger ledger must not write sidecars, found %d entries", len(entries))
	}
}
