// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package store

import (
	"fmt"
	"time"
)

// Verification is the recorded outcome of verifying one artifact. The size,
// modification time and digest fingerprint the exact bytes that were checked.
type Verification struct {
	Filename  string       `json:"filename"`
	Status    VerifyStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	CheckedAt time.Time    `json:"checkedAt"`
	SizeBytes int64        `json:"sizeBytes"`
	ModTime   time.Time    `json:"modTime"`
	SHA256    string       `json:"sha256,omitempty"`
}

// matches reports whether the record still describes a file of the given
// size and modification time.
func (v *Verification) matches(size int64, modTime time.Time) bool {
	return v.SizeBytes == size && v.ModTime.Equal(modTime)
}

// StatusLedger persists verification records keyed by artifact filename.
// Get returns (nil, nil) when no record exists.
type StatusLedger interface {
	Get(filename string) (*Verification, error)
	Put(v *Verification) error
	Delete(filename string) error
	Close() error
}

// Ledger backends.
const (
	LedgerSidecar = "sidecar"
	LedgerBadger  = "badger"
)

// OpenLedger opens the ledger backend selected by name.
func OpenLedger(backend, artifactDir, ledgerDir string) (StatusLedger, error) {
	switch backend {
	case "", LedgerSidecar:
		return NewSidecarLedger(artifactDir), nil
	case LedgerBadger:
		return OpenBadgerLedger(ledgerDir)
	default:
		return nil, fmt.Errorf("unknown ledger backend: %s", backend)
	}
}
