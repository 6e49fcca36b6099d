// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
	syncer "github.com/tomtom215/mediasync/internal/sync"
)

// SyncRunner runs one sync kind for a server.
type SyncRunner interface {
	Run(ctx context.Context, serverID string, kind syncer.Kind) (*syncer.SyncResult, error)
}

// EmbeddingHandler processes one batch of the embedding pipeline and
// returns a JSON-serializable summary.
type EmbeddingHandler interface {
	GenerateEmbeddings(ctx context.Context, p GenerateEmbeddingsPayload) (any, error)
}

// ResultStore records job bookkeeping rows.
type ResultStore interface {
	InsertJobResult(ctx context.Context, r *models.JobResult) error
}

// Handler executes payloads. Dispatcher is the production implementation.
type Handler interface {
	Dispatch(ctx context.Context, p Payload) error
}

// Dispatcher routes every payload type to its handler and writes the
// processing, completed and failed JobResult rows around it.
type Dispatcher struct {
	syncs      SyncRunner
	embeddings EmbeddingHandler
	results    ResultStore
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher. embeddings may be nil when the
// pipeline is disabled.
func NewDispatcher(syncs SyncRunner, embeddings EmbeddingHandler, results ResultStore) *Dispatcher {
	return &Dispatcher{
		syncs:      syncs,
		embeddings: embeddings,
		results:    results,
		now:        time.Now,
	}
}

type skipped struct {
	Skipped bool   `json:"skipped"`
	Reason  string `json:"reason"`
}

// Dispatch runs p. A sync that finds its server already syncing counts as
// completed and skipped. Any other error is returned so the queue retries.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) error {
	meta := p.Meta()
	name := p.JobName()
	ctx = logging.ContextWithJob(ctx, meta.ID, string(name))
	if sid := p.serverID(); sid != "" {
		ctx = logging.ContextWithServer(ctx, sid)
	}

	started := d.now()
	d.record(ctx, p, models.JobStatusProcessing, nil, nil, 0)
	logging.Ctx(ctx).Debug().Msg("Job started")

	result, err := d.dispatch(ctx, p)
	elapsed := d.now().Sub(started)

	switch {
	case errors.Is(err, syncer.ErrAlreadySyncing):
		metrics.JobsSkipped.WithLabelValues(string(name)).Inc()
		metrics.RecordJob(string(name), "skipped", elapsed)
		d.record(ctx, p, models.JobStatusCompleted, skipped{Skipped: true, Reason: err.Error()}, nil, elapsed)
		return nil
	case err != nil:
		metrics.RecordJob(string(name), "failed", elapsed)
		d.record(ctx, p, models.JobStatusFailed, result, err, elapsed)
		logging.Ctx(ctx).Error().Err(err).Dur("duration", elapsed).Msg("Job failed")
		return err
	default:
		metrics.RecordJob(string(name), "completed", elapsed)
		d.record(ctx, p, models.JobStatusCompleted, result, nil, elapsed)
		logging.Ctx(ctx).Info().Dur("duration", elapsed).Msg("Job completed")
		return nil
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, p Payload) (any, error) {
	switch p := p.(type) {
	case FullSyncPayload:
		return d.sync(ctx, p.ServerID, syncer.KindFull)
	case UsersSyncPayload:
		return d.sync(ctx, p.ServerID, syncer.KindUsers)
	case LibrariesSyncPayload:
		return d.sync(ctx, p.ServerID, syncer.KindLibraries)
	case ItemsSyncPayload:
		return d.sync(ctx, p.ServerID, syncer.KindItems)
	case ActivitiesSyncPayload:
		return d.sync(ctx, p.ServerID, syncer.KindActivities)
	case RecentItemsSyncPayload:
		return d.sync(ctx, p.ServerID, syncer.KindRecentItems)
	case RecentActivitiesSyncPayload:
		return d.sync(ctx, p.ServerID, syncer.KindRecentActivities)
	case GenerateEmbeddingsPayload:
		if d.embeddings == nil {
			return nil, fmt.Errorf("%s: %w", p.JobName(), ErrNoHandler)
		}
		return d.embeddings.GenerateEmbeddings(ctx, p)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownJob, p)
	}
}

func (d *Dispatcher) sync(ctx context.Context, serverID string, kind syncer.Kind) (any, error) {
	if d.syncs == nil {
		return nil, fmt.Errorf("%s sync: %w", kind, ErrNoHandler)
	}
	r, err := d.syncs.Run(ctx, serverID, kind)
	if r == nil {
		return nil, err
	}
	return r, err
}

// record writes a bookkeeping row. Failures are logged; bookkeeping never
// fails a job.
func (d *Dispatcher) record(ctx context.Context, p Payload, status models.JobStatus, result any, jobErr error, elapsed time.Duration) {
	if d.results == nil {
		return
	}
	row := &models.JobResult{
		JobID:            p.Meta().ID,
		JobName:          string(p.JobName()),
		ServerID:         p.serverID(),
		Status:           status,
		ProcessingTimeMS: elapsed.Milliseconds(),
		CreatedAt:        d.now(),
	}
	if jobErr != nil {
		row.Error = jobErr.Error()
	}
	if result != nil {
		b, err := json.Marshal(result)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to encode job result")
		} else {
			row.ResultPayload = b
		}
	}
	// The row must be written even when the job context has expired.
	if err := d.results.InsertJobResult(context.WithoutCancel(ctx), row); err != nil {
		logging.Ctx(ctx).Error().Err(err).Str("status", string(status)).Msg("Failed to record job result")
	}
}
