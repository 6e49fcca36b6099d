// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"fmt"
	"strings"
	gosync "sync"
	"time"
)

// Status is the outcome class of a sync.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusError   Status = "error"
)

// maxReportedErrors bounds SyncResult.Errors. ItemsErrored keeps the full count.
const maxReportedErrors = 100

// SyncMetrics are the counters of one entity sync.
type SyncMetrics struct {
	ItemsProcessed int           `json:"items_processed"`
	ItemsInserted  int           `json:"items_inserted"`
	ItemsUpdated   int           `json:"items_updated"`
	ItemsUnchanged int           `json:"items_unchanged"`
	ItemsErrored   int           `json:"items_errored"`
	PagesFetched   int           `json:"pages_fetched"`
	Truncated      bool          `json:"truncated,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

// SyncResult is what every entity module and FullSync return.
type SyncResult struct {
	Status  Status        `json:"status"`
	Entity  string        `json:"entity"`
	Metrics SyncMetrics   `json:"metrics"`
	Errors  []string      `json:"errors,omitempty"`
	Message string        `json:"message,omitempty"`
	Stages  []*SyncResult `json:"stages,omitempty"`

	// Err is the fatal cause of an error result.
	Err error `json:"-"`
}

// Success builds a success result.
func Success(entity string, m SyncMetrics) *SyncResult {
	return &SyncResult{Status: StatusSuccess, Entity: entity, Metrics: m}
}

// Partial builds a result for a run where some records failed.
func Partial(entity string, m SyncMetrics, errs []string) *SyncResult {
	return &SyncResult{Status: StatusPartial, Entity: entity, Metrics: m, Errors: errs}
}

// Failure builds an error result. m holds whatever was counted before err.
func Failure(entity string, m SyncMetrics, err error) *SyncResult {
	return &SyncResult{Status: StatusError, Entity: entity, Metrics: m, Message: err.Error(), Err: err}
}

// Summary renders a one-line description suitable for Server.sync_error.
func (r *SyncResult) Summary() string {
	switch r.Status {
	case StatusError:
		return r.Message
	case StatusPartial:
		if len(r.Stages) > 0 {
			var parts []string
			for _, s := range r.Stages {
				if s.Status != StatusSuccess {
					parts = append(parts, fmt.Sprintf("%s: %s", s.Entity, s.Summary()))
				}
			}
			return strings.Join(parts, "; ")
		}
		return fmt.Sprintf("%d of %d records failed", r.Metrics.ItemsErrored, r.Metrics.ItemsProcessed)
	default:
		return ""
	}
}

type change int

const (
	changeInserted change = iota
	changeUpdated
	changeUnchanged
)

// tally accumulates counters from concurrent workers.
type tally struct {
	mu     gosync.Mutex
	m      SyncMetrics
	errors []string
}

func (t *tally) processed(c change) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m.ItemsProcessed++
	switch c {
	case changeInserted:
		t.m.ItemsInserted++
	case changeUpdated:
		t.m.ItemsUpdated++
	case changeUnchanged:
		t.m.ItemsUnchanged++
	}
}

func (t *tally) failed(err *RecordError) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m.ItemsProcessed++
	t.m.ItemsErrored++
	if len(t.errors) < maxReportedErrors {
		t.errors = append(t.errors, err.Error())
	}
}

func (t *tally) page() {
	t.mu.Lock()
	t.m.PagesFetched++
	t.mu.Unlock()
}

func (t *tally) truncate() {
	t.mu.Lock()
	t.m.Truncated = true
	t.mu.Unlock()
}

// result classifies the run. fatal is the page or setup error, if any.
func (t *tally) result(entity string, started time.Time, fatal error) *SyncResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := t.m
	m.Duration = time.Since(started)
	switch {
	case fatal != nil:
		r := Failure(entity, m, fatal)
		r.Errors = append([]string(nil), t.errors...)
		return r
	case m.ItemsErrored > 0:
		return Partial(entity, m, append([]string(nil), t.errors...))
	default:
		return Success(entity, m)
	}
}

// aggregate combines stage results: error if any stage errored, partial
// if any stage is partial or carries errors, else success.
func aggregate(entity string, stages []*SyncResult, started time.Time) *SyncResult {
	out := &SyncResult{Status: StatusSuccess, Entity: entity, Stages: stages}
	var messages []string
	for _, s := range stages {
		out.Metrics.ItemsProcessed += s.Metrics.ItemsProcessed
		out.Metrics.ItemsInserted += s.Metrics.ItemsInserted
		out.Metrics.ItemsUpdated += s.Metrics.ItemsUpdated
		out.Metrics.ItemsUnchanged += s.Metrics.ItemsUnchanged
		out.Metrics.ItemsErrored += s.Metrics.ItemsErrored
		out.Metrics.PagesFetched += s.Metrics.PagesFetched
		out.Metrics.Truncated = out.Metrics.Truncated || s.Metrics.Truncated
		out.Errors = append(out.Errors, s.Errors...)

		switch {
		case s.Status == StatusError:
			out.Status = StatusError
			if out.Err == nil {
				out.Err = s.Err
			}
			messages = append(messages, fmt.Sprintf("%s: %s", s.Entity, s.Message))
		case out.Status != StatusError && (s.Status == StatusPartial || len(s.Errors) > 0):
			out.Status = StatusPartial
		}
	}
	if len(out.Errors) > maxReportedErrors {
		out.Errors = out.Errors[:maxReportedErrors]
	}
	out.Message = strings.Join(messages, "; ")
	out.Metrics.Duration = time.Since(started)
	return out
}
