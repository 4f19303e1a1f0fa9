// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package delivery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/dumpvault/internal/store"
)

// newTestArtifact writes content to a temporary artifact file.
func newTestArtifact(t *testing.T, content []byte) *store.Artifact {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Millisecond)
	name := store.NewFilename(store.KindDatabase, now)
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	return &store.Artifact{
		Filename:  name,
		Path:      path,
		SizeBytes: int64(len(content)),
		CreatedAt: now,
		Kind:      store.KindDatabase,
		Verified:  store.VerifyValid,
	}
}
