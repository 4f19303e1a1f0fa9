// Dumpvault - Database Backup Lifecycle Orchestrator
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dumpvault

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/dumpvault/internal/middleware"
)

// APIPrefix is the versioned base path.
const APIPrefix = "/api/v1"

// Router builds the chi route tree.
type Router struct {
	handler       *Handler
	chiMiddleware *ChiMiddleware
}

// NewRouter creates a Router. A nil middleware factory uses defaults.
func NewRouter(handler *Handler, mw *ChiMiddleware) *Router {
	if mw == nil {
		mw = NewChiMiddleware(nil)
	}
	return &Router{handler: handler, chiMiddleware: mw}
}

// Setup returns the HTTP handler for every route.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Applied to all routes in order.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.AccessLog)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	r.Use(router.chiMiddleware.CORS())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusNotFound, CodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		respondError(w, req, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/health", router.healthRoutes)
	r.Route(APIPrefix, func(r chi.Router) {
		r.Route("/health", router.healthRoutes)
		r.Group(router.apiRoutes)
	})

	// Unprefixed aliases for callers of the original backup routes.
	r.Group(router.backupRoutes)

	return r
}

func (router *Router) healthRoutes(r chi.Router) {
	r.Use(router.chiMiddleware.RateLimitHealthChecks())
	r.Get("/live", router.handler.HealthLive)
	r.Get("/ready", router.handler.HealthReady)
}

func (router *Router) apiRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())
		r.Get("/schedules", router.handler.Schedules)
		r.Get("/status", router.handler.Status)
	})
	router.backupRoutes(r)
}

func (router *Router) backupRoutes(r chi.Router) {
	r.Route("/backups", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(APISecurityHeaders())

		r.Get("/", router.handler.ListBackups)
		r.With(router.chiMiddleware.RateLimitJobStart()).Post("/", router.handler.CreateBackup)

		// Static segments are matched before {file}.
		r.Get("/retention/preview", router.handler.RetentionPreview)
		r.Delete("/cleanup", router.handler.CleanupBackups)

		r.Route("/{file}", func(r chi.Router) {
			r.Get("/", router.handler.GetBackup)
			r.Delete("/", router.handler.DeleteBackup)
			r.Get("/verify", router.handler.VerifyBackup)
			r.Get("/download", router.handler.DownloadBackup)
			r.With(router.chiMiddleware.RateLimitJobStart()).Post("/restore", router.handler.RestoreBackup)
			r.Post("/deliver", router.handler.DeliverBackup)
		})
	})
}
