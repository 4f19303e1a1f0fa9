// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package store

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies what an artifact contains.
type Kind string

// KindDatabase is a full logical dump of the configured database.
const KindDatabase Kind = "database"

// VerifyStatus is the tri-state verification outcome of an artifact.
type VerifyStatus string

const (
	VerifyUnknown VerifyStatus = "unknown"
	VerifyValid   VerifyStatus = "valid"
	VerifyInvalid VerifyStatus = "invalid"
)

const (
	// SQLExt is the extension of an uncompressed dump.
	SQLExt = ".sql"

	// GzipExt is appended to the name of a compressed dump.
	GzipExt = ".gz"

	// filenameTimeLayout is RFC 3339 in UTC with millisecond precision.
	filenameTimeLayout = "2006-01-02T15:04:05.000Z"
)

// filenamePattern matches the names NewFilename produces. It is also the
// only shape accepted from clients, which rules out path traversal.
var filenamePattern = regexp.MustCompile(`^(database)-([0-9TZ-]+)-([0-9a-f]{8})\.sql(\.gz)?$`)

// Artifact is one backup file in the store. All metadata is derived from the
// filename and stat; nothing is cached between calls.
type Artifact struct {
	Filename   string       `json:"filename"`
	Path       string       `json:"path"`
	SizeBytes  int64        `json:"sizeBytes"`
	CreatedAt  time.Time    `json:"createdAt"`
	Kind       Kind         `json:"kind"`
	Compressed bool         `json:"compressed"`
	Verified   VerifyStatus `json:"verified"`
}

// NewFilename returns a fresh artifact name such as
// database-2026-03-01T02-00-00-000Z-1a2b3c4d.sql.
func NewFilename(kind Kind, now time.Time) string {
	ts := now.UTC().Format(filenameTimeLayout)
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%s%s", kind, ts, suffix, SQLExt)
}

// ValidFilename reports whether name has the shape of an artifact filename.
func ValidFilename(name string) bool {
	return filenamePattern.MatchString(name)
}

// parseFilename extracts the kind and compression flag from name.
func parseFilename(name string) (Kind, bool, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", false, false
	}
	return Kind(m[1]), m[4] == GzipExt, true
}

// CompressedName returns the name of the compressed form of name.
func CompressedName(name string) string {
	return name + GzipExt
}
