// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package store

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const verifyKeyPrefix = "verify:"

// BadgerLedger keeps records in an embedded BadgerDB.
type BadgerLedger struct {
	db    *badger.DB
	owned bool
}

// OpenBadgerLedger opens (or creates) a BadgerDB at dir.
func OpenBadgerLedger(dir string) (*BadgerLedger, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger ledger: %w", err)
	}
	return &BadgerLedger{db: db, owned: true}, nil
}

// NewBadgerLedger wraps an already open database. Close leaves it open.
func NewBadgerLedger(db *badger.DB) *BadgerLedger {
	return &BadgerLedger{db: db}
}

// Get reads the record for filename.
func (l *BadgerLedger) Get(filename string) (*Verification, error) {
	var v *Verification

	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(verifyKeyPrefix + filename))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get verification record: %w", err)
		}

		return item.Value(func(val []byte) error {
			v = &Verification{}
			return json.Unmarshal(val, v)
		})
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Put stores the record.
func (l *BadgerLedger) Put(v *Verification) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode verification record: %w", err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(verifyKeyPrefix+v.Filename), data)
	})
}

// Delete removes the record. A missing record is not an error.
func (l *BadgerLedger) Delete(filename string) error {
	return l.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(verifyKeyPrefix + filename))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete verification record: %w", err)
		}
		return nil
	})
}

// Close closes the database when the ledger opened it.
func (l *BadgerLedger) Close() error {
	if l.owned {
		return l.db.Close()
	}
	return nil
}
