// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package metrics holds the Prometheus collectors exported on /metrics.
// Collectors are package globals registered through promauto; callers use
// the Record* helpers rather than touching collectors directly.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// Entity synchronization
	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of entity sync runs in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"entity"},
	)

	SyncResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_results_total",
			Help: "Entity sync runs by outcome (success, partial, error)",
		},
		[]string{"entity", "status"},
	)

	SyncRecords = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_total",
			Help: "Records reconciled by change classification",
		},
		[]string{"entity", "change"}, // inserted, updated, unchanged, errored
	)

	SyncActivityTruncated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_activity_truncated_total",
			Help: "Intelligent activity syncs that hit the page bound before reaching the stored watermark",
		},
	)

	// Jobs
	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Jobs added to the durable queue",
		},
		[]string{"job"},
	)

	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Job executions by final status",
		},
		[]string{"job", "status"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Job handler execution time in seconds",
			Buckets: []float64{0.1, 1, 5, 30, 120, 600, 1800, 3600, 14400},
		},
		[]string{"job"},
	)

	JobsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_skipped_total",
			Help: "Sync jobs skipped because the server was already syncing",
		},
		[]string{"job"},
	)

	// Scheduler
	SchedulerFires = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_trigger_fires_total",
			Help: "Scheduler trigger executions",
		},
		[]string{"trigger"},
	)

	SchedulerEnqueueErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_enqueue_errors_total",
			Help: "Per-server enqueue failures while firing a trigger",
		},
		[]string{"trigger"},
	)

	// Session poller
	PollerTicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "session_poller_ticks_total",
			Help: "Session poller ticks",
		},
	)

	PollerErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_poller_errors_total",
			Help: "Session fetch failures per server",
		},
		[]string{"server_id"},
	)

	PollerTrackedSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "session_poller_tracked_sessions",
			Help: "Sessions currently tracked in the arena",
		},
		[]string{"server_id"},
	)

	SessionsFinalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_finalized_total",
			Help: "Sessions ended by outcome (persisted, discarded, persist_failed)",
		},
		[]string{"outcome"},
	)

	// Embeddings
	EmbeddingsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embeddings_generated_total",
			Help: "Item embeddings by outcome (stored, cached, failed)",
		},
		[]string{"provider", "outcome"},
	)

	EmbeddingProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedding_provider_request_seconds",
			Help:    "Embedding provider request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	StaleJobsSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_stale_swept_total",
			Help: "Jobs marked failed by the stale sweep",
		},
	)

	// Cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Cache misses",
		},
		[]string{"cache"},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_published_total",
			Help: "Events published by topic and result",
		},
		[]string{"topic", "result"},
	)

	// Circuit breaker
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // success, failure, rejected
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Media server API
	MediaServerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_requests_total",
			Help: "Requests sent to media servers by endpoint and status class",
		},
		[]string{"endpoint", "status"},
	)

	MediaServerRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_server_retries_total",
			Help: "Retried media server requests by reason",
		},
		[]string{"reason"}, // rate_limited, server_error, network
	)

	// Admin API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Admin API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Admin API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordDBQuery records a database query metric.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordSyncResult records the outcome and counters of one entity sync.
func RecordSyncResult(entity, status string, duration time.Duration, inserted, updated, unchanged, errored int) {
	SyncDuration.WithLabelValues(entity).Observe(duration.Seconds())
	SyncResults.WithLabelValues(entity, status).Inc()
	SyncRecords.WithLabelValues(entity, "inserted").Add(float64(inserted))
	SyncRecords.WithLabelValues(entity, "updated").Add(float64(updated))
	SyncRecords.WithLabelValues(entity, "unchanged").Add(float64(unchanged))
	SyncRecords.WithLabelValues(entity, "errored").Add(float64(errored))
}

// RecordJob records a finished job execution.
func RecordJob(job, status string, duration time.Duration) {
	JobsProcessed.WithLabelValues(job, status).Inc()
	JobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// RecordEmbedding records embedding outcomes for a provider.
func RecordEmbedding(provider, outcome string, n int) {
	if n <= 0 {
		return
	}
	EmbeddingsGenerated.WithLabelValues(provider, outcome).Add(float64(n))
}

// RecordCacheLookup records a cache hit or miss.
func RecordCacheLookup(cache string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cache).Inc()
		return
	}
	CacheMisses.WithLabelValues(cache).Inc()
}

// RecordAPIRequest records an admin API request.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
