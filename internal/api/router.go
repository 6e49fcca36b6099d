// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package api serves the admin endpoints over a chi router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/mediasync/internal/middleware"
)

// NewRouter wires every route of h behind the shared middleware stack.
func NewRouter(h *Handler, mw *Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(mw.CORS())

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.RateLimit())
		r.Use(APISecurityHeaders())

		// Long-lived and hijacked, so outside the response wrappers below.
		r.Get("/sessions/stream", h.SessionStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.PrometheusMetrics)
			r.Use(h.deps.Performance.Middleware)
			r.Use(chimiddleware.Compress(5, "application/json"))

			r.Get("/servers", h.ListServers)
			r.Post("/servers/{id}/sync", h.TriggerSync)
			r.Post("/servers/{id}/embeddings", h.StartEmbeddings)
			r.Get("/servers/{id}/sessions", h.ActiveSessions)

			r.Get("/scheduler", h.SchedulerStatus)
			r.Patch("/scheduler", h.UpdateScheduler)

			r.Get("/poller", h.PollerStatus)

			r.Get("/jobs/results", h.JobResults)
			r.Get("/performance", h.PerformanceStats)
		})
	})

	return r
}
