// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/mediasync/internal/jobs"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
)

const (
	DefaultStaleAfter     = 10 * time.Minute
	DefaultHeartbeatGrace = 2 * time.Minute
)

// StaleStore lists and closes stale job bookkeeping.
type StaleStore interface {
	ListStaleJobs(ctx context.Context, jobNames []string, startedBefore, heartbeatBefore time.Time) ([]*models.StaleJob, error)
	InsertJobResult(ctx context.Context, r *models.JobResult) error
}

// heartbeatJobs lists the jobs that write heartbeat rows while running.
// Silence is only evidence of abandonment for these; a sync job writes
// nothing between its processing and final rows.
var heartbeatJobs = []string{string(jobs.NameGenerateEmbeddings)}

// Sweeper marks abandoned embedding jobs failed. It only appends JobResult
// rows; a job that is in fact still running is not stopped.
type Sweeper struct {
	store      StaleStore
	staleAfter time.Duration
	grace      time.Duration
	jobNames   []string
}

// NewSweeper creates a Sweeper. Zero durations take the defaults.
func NewSweeper(store StaleStore, staleAfter, grace time.Duration) *Sweeper {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if grace <= 0 {
		grace = DefaultHeartbeatGrace
	}
	return &Sweeper{store: store, staleAfter: staleAfter, grace: grace, jobNames: heartbeatJobs}
}

// Sweep writes a failed row for every embedding job still processing that
// started more than staleAfter before now and has been silent for more
// than grace. It returns how many jobs it closed.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (int, error) {
	stale, err := s.store.ListStaleJobs(ctx, s.jobNames, now.Add(-s.staleAfter), now.Add(-s.grace))
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, j := range stale {
		row := &models.JobResult{
			JobID:            j.JobID,
			JobName:          j.JobName,
			ServerID:         j.ServerID,
			Status:           models.JobStatusFailed,
			Error:            ErrStaleJob.Error(),
			ProcessingTimeMS: j.LastHeartbeat.Sub(j.StartedAt).Milliseconds(),
			CreatedAt:        now,
		}
		if err := s.store.InsertJobResult(ctx, row); err != nil {
			return closed, fmt.Errorf("failed to close stale job %s: %w", j.JobID, err)
		}
		closed++
		logging.Warn().
			Str("job_id", j.JobID).
			Str("job_name", j.JobName).
			Time("last_heartbeat", j.LastHeartbeat).
			Msg("Marked stale job failed")
	}
	metrics.StaleJobsSwept.Add(float64(closed))
	return closed, nil
}
