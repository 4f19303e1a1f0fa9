// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/tomtom215/dumpvault/internal/logging"
	"github.com/tomtom215/dumpvault/internal/metrics"
)

// DefaultSubjectPrefix is prepended to every event type.
const DefaultSubjectPrefix = "dumpvault.backup"

// NATSPublisher publishes events as core NATS messages.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// Connect dials url and returns a publisher. The connection reconnects
// forever; publishes during an outage are buffered by the client.
func Connect(url, prefix string, opts ...nats.Option) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	logger := logging.WithComponent("events")

	base := []nats.Option{
		nats.Name("dumpvault"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrlRedacted()).Msg("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(url, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	logger.Info().Str("url", nc.ConnectedUrlRedacted()).Str("prefix", prefix).Msg("Event publisher connected")
	return &NATSPublisher{conn: nc, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject an event of type t is published on.
func (p *NATSPublisher) Subject(t Type) string {
	return p.prefix + "." + string(t)
}

// Publish encodes e as JSON and publishes it.
func (p *NATSPublisher) Publish(ctx context.Context, e *Event) error {
	if p == nil {
		return errors.New("nil publisher")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		metrics.RecordEventPublish(err)
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.conn.Publish(p.Subject(e.Type), data)
	metrics.RecordEventPublish(err)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}

// Connected reports whether the connection is currently up.
func (p *NATSPublisher) Connected() bool {
	return p.conn.IsConnected()
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
