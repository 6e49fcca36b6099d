// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package wal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// journalWrites counts journal operations by kind (append, failure, remove).
	journalWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_journal_writes_total",
		Help: "Session journal writes by operation",
	}, []string{"op"})

	// journalPending is the number of records in the journal.
	journalPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "session_journal_pending_entries",
		Help: "Session records waiting in the journal",
	})

	journalWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_journal_write_latency_seconds",
		Help:    "Session journal write latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	journalGCRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_journal_gc_runs_total",
		Help: "BadgerDB value log GC runs by result (rewritten, clean, error)",
	}, []string{"result"})

	journalGCLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "session_journal_gc_latency_seconds",
		Help:    "BadgerDB value log GC latency in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)
