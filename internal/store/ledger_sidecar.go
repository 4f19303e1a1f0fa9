// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
)

// SidecarLedger keeps each record in a hidden JSON file next to its artifact.
type SidecarLedger struct {
	dir string
}

// NewSidecarLedger creates a ledger writing into dir.
func NewSidecarLedger(dir string) *SidecarLedger {
	return &SidecarLedger{dir: dir}
}

func (l *SidecarLedger) path(filename string) string {
	return filepath.Join(l.dir, "."+filename+".verify.json")
}

// Get reads the record for filename.
func (l *SidecarLedger) Get(filename string) (*Verification, error) {
	data, err := os.ReadFile(l.path(filename))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read verification record: %w", err)
	}

	var v Verification
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode verification record: %w", err)
	}
	return &v, nil
}

// Put writes the record atomically.
func (l *SidecarLedger) Put(v *Verification) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verification record: %w", err)
	}

	target := l.path(v.Filename)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write verification record: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit verification record: %w", err)
	}
	return nil
}

// Delete removes the record. A missing record is not an error.
func (l *SidecarLedger) Delete(filename string) error {
	if err := os.Remove(l.path(filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove verification record: %w", err)
	}
	return nil
}

// Close is a no-op.
func (l *SidecarLedger) Close() error {
	return nil
}
