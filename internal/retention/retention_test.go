// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package retention

import (
	"testing"
	"time"

	"github.com/tomtom215/dumpvault/internal/store"
)

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func TestExpired(t *testing.T) {
	tests := []struct {
		name       string
		age        time.Duration
		maxAgeDays int
		want       bool
	}{
		{"fresh", time.Hour, 7, false},
		{"exactly N days", 7 * Day, 7, false},
		{"one second past N days", 7*Day + time.Second, 7, true},
		{"far past", 30 * Day, 7, true},
		{"zero days, positive age", time.Millisecond, 0, true},
		{"zero days, zero age", 0, 0, false},
		{"created in the future", -time.Hour, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Expired(now.Add(-tt.age), now, tt.maxAgeDays); got != tt.want {
				t.Errorf("Expired(age=%v, days=%d) = %v, want %v", tt.age, tt.maxAgeDays, got, tt.want)
			}
		})
	}
}

func artifact(name string, age time.Duration, size int64, status store.VerifyStatus) *store.Artifact {
	return &store.Artifact{
		Filename:  name,
		CreatedAt: now.Add(-age),
		SizeBytes: size,
		Verified:  status,
	}
}

func TestClassify(t *testing.T) {
	fresh := artifact("fresh", time.Hour, 10, store.VerifyUnknown)
	boundary := artifact("boundary", 7*Day, 20, store.VerifyValid)
	oldValid := artifact("old-valid", 10*Day, 30, store.VerifyValid)
	olderValid := artifact("older-valid", 20*Day, 40, store.VerifyValid)
	oldInvalid := artifact("old-invalid", 8*Day, 50, store.VerifyInvalid)
	all := []*store.Artifact{fresh, boundary, oldInvalid, oldValid, olderValid}

	t.Run("age only", func(t *testing.T) {
		d := Classify(all, now, Policy{MaxAgeDays: 7})
		if names(d.Expired) != "old-invalid,old-valid,older-valid" {
			t.Errorf("unexpected expired set: %s", names(d.Expired))
		}
		if names(d.Kept) != "fresh,boundary" {
			t.Errorf("unexpected kept set: %s", names(d.Kept))
		}
		if d.Protected != nil {
			t.Error("nothing should be protected without KeepLastVerified")
		}
	})

	t.Run("keep last verified", func(t *testing.T) {
		d := Classify(all, now, Policy{MaxAgeDays: 0, KeepLastVerified: true})
		// boundary is the newest valid artifact, so it survives a zero-day window.
		if d.Protected != boundary {
			t.Fatalf("expected boundary to be protected, got %v", d.Protected)
		}
		if names(d.Expired) != "fresh,old-invalid,old-valid,older-valid" {
			t.Errorf("unexpected expired set: %s", names(d.Expired))
		}
	})

	t.Run("protected only when expired", func(t *testing.T) {
		d := Classify(all, now, Policy{MaxAgeDays: 7, KeepLastVerified: true})
		if d.Protected != nil {
			t.Errorf("newest valid artifact is not expired, got protected %s", d.Protected.Filename)
		}
	})

	t.Run("zero days removes fresh artifact", func(t *testing.T) {
		d := Classify([]*store.Artifact{fresh}, now, Policy{MaxAgeDays: 0})
		if len(d.Expired) != 1 {
			t.Errorf("expected fresh artifact to expire with N=0, got %d expired", len(d.Expired))
		}
	})
}

func TestNewPreview(t *testing.T) {
	arts := []*store.Artifact{
		artifact("a", time.Hour, 100, store.VerifyUnknown),
		artifact("b", 8*Day, 250, store.VerifyValid),
		artifact("c", 9*Day, 50, store.VerifyUnknown),
	}

	pv := NewPreview(arts, now, Policy{MaxAgeDays: 7, KeepLastVerified: true})
	if pv.DeleteCount != 1 || pv.KeepCount != 2 {
		t.Errorf("expected 1 delete / 2 keep, got %d / %d", pv.DeleteCount, pv.KeepCount)
	}
	if pv.ReclaimedBytes != 50 || pv.RetainedBytes != 350 {
		t.Errorf("unexpected byte totals: reclaim %d, retain %d", pv.ReclaimedBytes, pv.RetainedBytes)
	}
	if pv.Protected != "b" {
		t.Errorf("expected b protected, got %q", pv.Protected)
	}
	if !pv.Cutoff.Equal(now.Add(-7 * Day)) {
		t.Errorf("unexpected cutoff %v", pv.Cutoff)
	}

	empty := NewPreview(nil, now, Policy{MaxAgeDays: 7})
	if empty.WouldDelete == nil || empty.WouldKeep == nil {
		t.Error("preview lists should be empty, not nil")
	}
}

func names(arts []*store.Artifact) string {
	out := ""
	for i, a := range arts {
		if i > 0 {
			out += ","
		}
		out += a.Filename
	}
	return out
}
