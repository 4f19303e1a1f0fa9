// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package retention decides which artifacts have outlived the retention
// window. Everything here is pure: callers pass the clock in.
package retention

import (
	"time"

	"github.com/tomtom215/dumpvault/internal/store"
)

// Day is the length of one retention day. Calendar and DST shifts are
// deliberately not considered.
const Day = 24 * time.Hour

// Expired reports whether an artifact created at createdAt is older than
// maxAgeDays at now. An artifact exactly maxAgeDays old is kept; with
// maxAgeDays = 0 any artifact with positive age is expired.
func Expired(createdAt, now time.Time, maxAgeDays int) bool {
	return now.Sub(createdAt) > time.Duration(maxAgeDays)*Day
}

// Policy configures Classify.
type Policy struct {
	MaxAgeDays int

	// KeepLastVerified exempts the newest artifact whose status is valid,
	// so an expired store never loses its last restorable backup.
	KeepLastVerified bool
}

// Decision splits artifacts into those to delete and those to keep. Both
// lists preserve the input order.
type Decision struct {
	Expired []*store.Artifact
	Kept    []*store.Artifact

	// Protected is the artifact kept only because of KeepLastVerified.
	Protected *store.Artifact
}

// Classify applies p to artifacts at now.
func Classify(artifacts []*store.Artifact, now time.Time, p Policy) Decision {
	var protected *store.Artifact
	if p.KeepLastVerified {
		for _, a := range artifacts {
			if a.Verified != store.VerifyValid {
				continue
			}
			if protected == nil || a.CreatedAt.After(protected.CreatedAt) {
				protected = a
			}
		}
	}

	var d Decision
	for _, a := range artifacts {
		if !Expired(a.CreatedAt, now, p.MaxAgeDays) {
			d.Kept = append(d.Kept, a)
			continue
		}
		if a == protected {
			d.Kept = append(d.Kept, a)
			d.Protected = a
			continue
		}
		d.Expired = append(d.Expired, a)
	}
	return d
}

// Preview summarizes what a cleanup with p would do.
type Preview struct {
	MaxAgeDays     int               `json:"maxAgeDays"`
	Cutoff         time.Time         `json:"cutoff"`
	WouldDelete    []*store.Artifact `json:"wouldDelete"`
	WouldKeep      []*store.Artifact `json:"wouldKeep"`
	DeleteCount    int               `json:"deleteCount"`
	KeepCount      int               `json:"keepCount"`
	ReclaimedBytes int64             `json:"reclaimedBytes"`
	RetainedBytes  int64             `json:"retainedBytes"`
	Protected      string            `json:"protected,omitempty"`
}

// NewPreview classifies artifacts and totals the result.
func NewPreview(artifacts []*store.Artifact, now time.Time, p Policy) *Preview {
	d := Classify(artifacts, now, p)

	pv := &Preview{
		MaxAgeDays:  p.MaxAgeDays,
		Cutoff:      now.Add(-time.Duration(p.MaxAgeDays) * Day),
		WouldDelete: nonNil(d.Expired),
		WouldKeep:   nonNil(d.Kept),
		DeleteCount: len(d.Expired),
		KeepCount:   len(d.Kept),
	}
	for _, a := range d.Expired {
		pv.ReclaimedBytes += a.SizeBytes
	}
	for _, a := range d.Kept {
		pv.RetainedBytes += a.SizeBytes
	}
	if d.Protected != nil {
		pv.Protected = d.Protected.Filename
	}
	return pv
}

func nonNil(a []*store.Artifact) []*store.Artifact {
	if a == nil {
		return []*store.Artifact{}
	}
	return a
}
