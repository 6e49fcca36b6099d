// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/mediasync/internal/logging"
)

const (
	defaultWindowSize    = 1000
	defaultSlowThreshold = time.Second
)

// RequestSample is one observed request.
type RequestSample struct {
	Route      string
	Method     string
	Duration   time.Duration
	StatusCode int
	Timestamp  time.Time
}

// EndpointStats aggregates the samples of one method and route.
type EndpointStats struct {
	Endpoint     string  `json:"endpoint"`
	RequestCount int     `json:"request_count"`
	ErrorCount   int     `json:"error_count"`
	AvgMS        float64 `json:"avg_ms"`
	P50MS        int64   `json:"p50_ms"`
	P95MS        int64   `json:"p95_ms"`
	P99MS        int64   `json:"p99_ms"`
	MaxMS        int64   `json:"max_ms"`
}

// PerformanceMonitor keeps the most recent requests in a ring buffer and
// logs every request slower than the threshold.
type PerformanceMonitor struct {
	mu        sync.RWMutex
	samples   []RequestSample
	next      int
	full      bool
	threshold time.Duration
}

// NewPerformanceMonitor creates a monitor holding windowSize samples.
// Non-positive arguments take the defaults of 1000 samples and 1s.
func NewPerformanceMonitor(windowSize int, slowThreshold time.Duration) *PerformanceMonitor {
	if windowSize <= 0 {
		windowSize = defaultWindowSize
	}
	if slowThreshold <= 0 {
		slowThreshold = defaultSlowThreshold
	}
	return &PerformanceMonitor{
		samples:   make([]RequestSample, windowSize),
		threshold: slowThreshold,
	}
}

// Record adds a sample, overwriting the oldest once the window is full.
func (pm *PerformanceMonitor) Record(s RequestSample) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.samples[pm.next] = s
	pm.next = (pm.next + 1) % len(pm.samples)
	if pm.next == 0 {
		pm.full = true
	}
}

func (pm *PerformanceMonitor) window() []RequestSample {
	if pm.full {
		return pm.samples
	}
	return pm.samples[:pm.next]
}

// Stats returns per-endpoint statistics, busiest first.
func (pm *PerformanceMonitor) Stats() []EndpointStats {
	pm.mu.RLock()
	byEndpoint := make(map[string][]RequestSample)
	for _, s := range pm.window() {
		key := s.Method + " " + s.Route
		byEndpoint[key] = append(byEndpoint[key], s)
	}
	pm.mu.RUnlock()

	stats := make([]EndpointStats, 0, len(byEndpoint))
	for endpoint, samples := range byEndpoint {
		ms := make([]int64, len(samples))
		var sum int64
		errs := 0
		for i, s := range samples {
			ms[i] = s.Duration.Milliseconds()
			sum += ms[i]
			if s.StatusCode >= http.StatusInternalServerError {
				errs++
			}
		}
		sort.Slice(ms, func(i, j int) bool { return ms[i] < ms[j] })

		stats = append(stats, EndpointStats{
			Endpoint:     endpoint,
			RequestCount: len(ms),
			ErrorCount:   errs,
			AvgMS:        float64(sum) / float64(len(ms)),
			P50MS:        percentile(ms, 0.50),
			P95MS:        percentile(ms, 0.95),
			P99MS:        percentile(ms, 0.99),
			MaxMS:        ms[len(ms)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].RequestCount != stats[j].RequestCount {
			return stats[i].RequestCount > stats[j].RequestCount
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}

// Middleware samples every request passing through it.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		route := routePattern(r)
		pm.Record(RequestSample{
			Route:      route,
			Method:     r.Method,
			Duration:   duration,
			StatusCode: wrapper.statusCode,
			Timestamp:  start,
		})

		if duration > pm.threshold {
			logging.Ctx(r.Context()).Warn().
				Str("method", r.Method).
				Str("route", route).
				Int64("duration_ms", duration.Milliseconds()).
				Int64("threshold_ms", pm.threshold.Milliseconds()).
				Msg("Slow request detected")
		}
	})
}

// percentile reads the p-th value of an ascending slice.
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}
