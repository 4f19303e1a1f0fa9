// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

// Package middleware provides HTTP middleware shared by the API router.
//
// Middleware Components:
//   - RequestID: assigns or propagates X-Request-ID and stores it in the
//     request context for logging
//   - AccessLog: one structured zerolog line per request
//   - PrometheusMetrics: request count and latency labeled by chi route
//     pattern, so artifact filenames never become label values
//
// All middleware have the func(http.Handler) http.Handler shape and are
// installed with chi's r.Use.
package middleware
