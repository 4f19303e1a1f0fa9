// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/tomtom215/dumpvault/internal/backup"
	"github.com/tomtom215/dumpvault/internal/schedule"
)

// readinessTimeout bounds each readiness check.
const readinessTimeout = 5 * time.Second

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version       string        `json:"version"`
	UptimeSeconds float64       `json:"uptimeSeconds"`
	Jobs          backup.Status `json:"jobs"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ReadyResponse is returned by GET /health/ready.
type ReadyResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// HealthLive handles liveness probes. It reports 200 whenever the process
// can serve HTTP, regardless of dependencies.
func (h *Handler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": time.Since(h.startTime).Seconds(),
	})
}

// HealthReady handles readiness probes. Every configured check runs with
// its own timeout; any failure yields 503 with the failing checks named.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := &ReadyResponse{Ready: true, Checks: make(map[string]string, len(names))}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := h.checks[name](ctx)
		cancel()
		if err != nil {
			resp.Ready = false
			resp.Checks[name] = err.Error()
			h.logger.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			continue
		}
		resp.Checks[name] = "ok"
	}

	if !resp.Ready {
		respondError(w, r, http.StatusServiceUnavailable, CodeNotReady, "service is not ready", resp.Checks)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, &StatusResponse{
		Version:       h.version,
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		Jobs:          h.backups.Status(),
		Timestamp:     time.Now().UTC(),
	})
}

// Schedules handles GET /schedules, ordered by next fire time.
func (h *Handler) Schedules(w http.ResponseWriter, _ *http.Request) {
	upcoming := []schedule.Upcoming{}
	if h.schedules != nil {
		if u := h.schedules.Upcoming(); u != nil {
			upcoming = u
		}
	}
	respondJSON(w, http.StatusOK, upcoming)
}
