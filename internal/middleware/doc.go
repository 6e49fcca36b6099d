// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
Package middleware provides the request instrumentation shared by the admin
API router:

  - RequestID: X-Request-ID propagation, generating a UUID when absent, and
    the id used as the logging correlation id
  - PrometheusMetrics: request count and latency labeled by chi route pattern
  - PerformanceMonitor: a rolling window of request latencies with
    per-route percentiles, logging requests slower than a threshold

All middleware has the chi signature func(http.Handler) http.Handler:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(perf.Middleware)
*/
package middleware
