// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package events publishes backup lifecycle events.
//
// Events are fire-and-forget notifications for other systems (dashboards,
// chat bots, audit sinks). A failed publish is logged and counted but never
// changes the outcome of the job that produced the event.
//
// Subjects are <prefix>.<type>, for example dumpvault.backup.created.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is the current event schema version.
const SchemaVersion = 1

// Type names a lifecycle transition.
type Type string

const (
	TypeCreated    Type = "created"
	TypeCompressed Type = "compressed"
	TypeVerified   Type = "verified"
	TypeRestored   Type = "restored"
	TypeCleaned    Type = "cleaned"
	TypeDeleted    Type = "deleted"
	TypeDelivered  Type = "delivered"
	TypeFailed     Type = "failed"
)

// Event is the JSON payload published for every transition.
type Event struct {
	SchemaVersion int       `json:"schema_version"`
	EventID       string    `json:"event_id"`
	Type          Type      `json:"type"`
	Timestamp     time.Time `json:"timestamp"`

	// JobID correlates all events of one pipeline run.
	JobID   string `json:"job_id,omitempty"`
	Trigger string `json:"trigger,omitempty"`

	Filename   string `json:"filename,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	Compressed bool   `json:"compressed,omitempty"`
	Verified   string `json:"verified,omitempty"`

	// Operation is the failed stage for TypeFailed.
	Operation string `json:"operation,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`

	Removed    int   `json:"removed,omitempty"`
	FreedBytes int64 `json:"freed_bytes,omitempty"`

	Delivered int `json:"delivered,omitempty"`
	Failed    int `json:"failed,omitempty"`
}

// New returns an event of type t stamped with a fresh ID and the current time.
func New(t Type) *Event {
	return &Event{
		SchemaVersion: SchemaVersion,
		EventID:       uuid.NewString(),
		Type:          t,
		Timestamp:     time.Now().UTC(),
	}
}

// Publisher sends events.
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// NopPublisher discards every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, *Event) error { return nil }

// Close implements Publisher.
func (NopPublisher) Close() error { return nil }
