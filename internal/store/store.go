// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package store is the directory-backed registry of backup artifacts.
//
// The directory is the source of truth: an artifact exists exactly when its
// file exists, and size, creation time and compression are read from the
// filesystem on every call. Verification status lives in a StatusLedger and
// is only trusted while the recorded fingerprint still matches the file.
//
// In-progress writes use hidden temporary names (leading dot) and are never
// listed. Committing a write renames the temporary file to its final name.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/dumpvault/internal/logging"
)

var (
	// ErrNotFound is returned when no artifact has the requested name.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidName is returned for names that are not artifact filenames.
	ErrInvalidName = errors.New("invalid artifact filename")

	// ErrExists is returned when a commit would overwrite an artifact.
	ErrExists = errors.New("artifact already exists")
)

const tempSuffix = ".tmp"

// Store manages the artifact directory.
type Store struct {
	dir        string
	ledger     StatusLedger
	pins       *Pins
	removeFile func(path string) error
	logger     zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithRemoveFunc replaces os.Remove for artifact deletion.
func WithRemoveFunc(fn func(path string) error) Option {
	return func(s *Store) {
		if fn != nil {
			s.removeFile = fn
		}
	}
}

// New creates the directory if needed and returns a Store over it.
func New(dir string, ledger StatusLedger, opts ...Option) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve backup dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	if ledger == nil {
		ledger = NewSidecarLedger(abs)
	}
	s := &Store{
		dir:        abs,
		ledger:     ledger,
		pins:       NewPins(),
		removeFile: os.Remove,
		logger:     logging.WithComponent("store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the absolute artifact directory.
func (s *Store) Dir() string { return s.dir }

// Pins returns the set of artifacts currently open by readers.
func (s *Store) Pins() *Pins { return s.pins }

// Close releases the ledger.
func (s *Store) Close() error {
	return s.ledger.Close()
}

// Path returns the absolute path of filename inside the store.
func (s *Store) Path(filename string) string {
	return filepath.Join(s.dir, filename)
}

// List returns every artifact, newest first.
func (s *Store) List(ctx context.Context) ([]*Artifact, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	artifacts := make([]*Artifact, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() || !ValidFilename(entry.Name()) {
			continue
		}
		a, err := s.stat(entry.Name())
		if errors.Is(err, ErrNotFound) {
			// removed between ReadDir and Stat
			continue
		}
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, a)
	}

	sort.Slice(artifacts, func(i, j int) bool {
		if artifacts[i].CreatedAt.Equal(artifacts[j].CreatedAt) {
			return artifacts[i].Filename > artifacts[j].Filename
		}
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// Get returns the artifact named filename.
func (s *Store) Get(_ context.Context, filename string) (*Artifact, error) {
	if !ValidFilename(filename) {
		return nil, ErrInvalidName
	}
	return s.stat(filename)
}

func (s *Store) stat(filename string) (*Artifact, error) {
	kind, compressed, _ := parseFilename(filename)
	path := s.Path(filename)

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("stat artifact: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}

	a := &Artifact{
		Filename:   filename,
		Path:       path,
		SizeBytes:  info.Size(),
		CreatedAt:  info.ModTime(),
		Kind:       kind,
		Compressed: compressed,
	}
	a.Verified = s.status(a)
	return a, nil
}

// status reads the ledger. A record whose fingerprint no longer matches the
// file, or a ledger read error, yields VerifyUnknown.
func (s *Store) status(a *Artifact) VerifyStatus {
	v, err := s.ledger.Get(a.Filename)
	if err != nil {
		s.logger.Warn().Err(err).Str("file", a.Filename).Msg("Failed to read verification record")
		return VerifyUnknown
	}
	if v == nil || !v.matches(a.SizeBytes, a.CreatedAt) {
		return VerifyUnknown
	}
	return v.Status
}

// Verification returns the ledger record for a, or nil when there is none or
// it no longer matches the file.
func (s *Store) Verification(a *Artifact) (*Verification, error) {
	v, err := s.ledger.Get(a.Filename)
	if err != nil || v == nil {
		return nil, err
	}
	if !v.matches(a.SizeBytes, a.CreatedAt) {
		return nil, nil
	}
	return v, nil
}

// RecordVerification stores the outcome for the exact bytes described by a.
func (s *Store) RecordVerification(a *Artifact, status VerifyStatus, message, sha256 string) error {
	v := &Verification{
		Filename:  a.Filename,
		Status:    status,
		Message:   message,
		CheckedAt: time.Now().UTC(),
		SizeBytes: a.SizeBytes,
		ModTime:   a.CreatedAt,
		SHA256:    sha256,
	}
	if err := s.ledger.Put(v); err != nil {
		return err
	}
	a.Verified = status
	return nil
}

// ForgetVerification drops the ledger record for filename.
func (s *Store) ForgetVerification(filename string) error {
	return s.ledger.Delete(filename)
}

// Open opens the artifact for reading. The caller closes the file.
func (s *Store) Open(ctx context.Context, filename string) (*os.File, *Artifact, error) {
	a, err := s.Get(ctx, filename)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(a.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open artifact: %w", err)
	}
	return f, a, nil
}

// Remove deletes the artifact and its verification record.
func (s *Store) Remove(filename string) error {
	if !ValidFilename(filename) {
		return ErrInvalidName
	}
	if err := s.removeFile(s.Path(filename)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove artifact: %w", err)
	}
	if err := s.ledger.Delete(filename); err != nil {
		s.logger.Warn().Err(err).Str("file", filename).Msg("Failed to remove verification record")
	}
	return nil
}

// RemoveUnpinned deletes filename unless a reader has it pinned. The
// boolean reports whether the artifact was removed.
func (s *Store) RemoveUnpinned(filename string) (bool, error) {
	return s.pins.RemoveIfUnpinned(filename, func() error { return s.Remove(filename) })
}

// TempPath returns the hidden path used while filename is being written.
func (s *Store) TempPath(filename string) string {
	return filepath.Join(s.dir, "."+filename+tempSuffix)
}

// Commit renames a finished temporary file to filename. It refuses to
// replace an existing artifact.
func (s *Store) Commit(ctx context.Context, tmpPath, filename string) (*Artifact, error) {
	if !ValidFilename(filename) {
		return nil, ErrInvalidName
	}
	final := s.Path(filename)
	if _, err := os.Lstat(final); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrExists, filename)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("check artifact: %w", err)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		return nil, fmt.Errorf("commit artifact: %w", err)
	}
	syncDir(s.dir)
	return s.Get(ctx, filename)
}

// SweepTemp removes temporary files older than maxAge left behind by a
// crash. It returns the number of files removed.
func (s *Store) SweepTemp(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("read backup dir: %w", err)
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, ".") || !strings.HasSuffix(name, tempSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
			removed++
			s.logger.Info().Str("file", name).Msg("Removed stale temporary file")
		}
	}
	return removed, nil
}

// syncDir flushes the directory entry after a rename. Errors are ignored:
// not every filesystem supports fsync on directories.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
