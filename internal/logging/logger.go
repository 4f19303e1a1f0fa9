// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package logging provides the process-wide zerolog logger for Dumpvault.
//
// Every component logs through this package so that output format, level and
// field names are consistent between the HTTP server, the scheduler, the
// backup pipeline and the operator CLI.
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//	logging.Info().Str("file", name).Msg("Backup created")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Delivery failed")
//
// Credentials are never passed to the logger. Values that originate from
// clients or external tools go through SanitizeValue, and values that may
// contain secrets go through a Redactor first.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, encoding and destination of log output.
type Config struct {
	Level     string // trace, debug, info, warn, error or disabled
	Format    string // json or console
	Caller    bool
	Timestamp bool
	Output    io.Writer // os.Stderr when nil
}

// DefaultConfig is JSON at info level with timestamps, written to stderr.
func DefaultConfig() Config {
	return Config{
		Level:     "info",
		Format:    "json",
		Timestamp: true,
		Output:    os.Stderr,
	}
}

var current atomic.Pointer[zerolog.Logger]

//nolint:gochecknoinits // packages may log before main calls Init
func init() {
	Init(DefaultConfig())
}

// Init replaces the global logger. It may be called again at any time, for
// example after the configuration file has been loaded.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	l := build(cfg)
	current.Store(&l)
}

func build(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	zc := zerolog.New(out).With()
	if cfg.Timestamp {
		zc = zc.Timestamp()
	}
	if cfg.Caller {
		zc = zc.Caller()
	}
	return zc.Logger()
}

// parseLevel accepts zerolog level names plus "warning". Unknown or empty
// input means info.
func parseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return zerolog.WarnLevel
	}
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	return *current.Load()
}

// SetLogger installs l as the global logger without touching the global level.
//
//nolint:gocritic // zerolog.Logger is passed by value throughout
func SetLogger(l zerolog.Logger) {
	current.Store(&l)
}

// WithComponent returns a child of the global logger carrying a component
// field, e.g. logging.WithComponent("scheduler").
func WithComponent(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}

// Info starts an info event on the global logger.
func Info() *zerolog.Event { return current.Load().Info() }

// Warn starts a warn event on the global logger.
func Warn() *zerolog.Event { return current.Load().Warn() }

// Error starts an error event on the global logger.
func Error() *zerolog.Event { return current.Load().Error() }

// Fatal starts a fatal event; the process exits once it is sent.
func Fatal() *zerolog.Event { return current.Load().Fatal() }

// NewTestLogger returns a timestamped JSON logger writing to w.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
