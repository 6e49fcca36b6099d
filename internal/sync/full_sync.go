// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/models"
)

// EntityFull labels FullSync results.
const EntityFull = "full"

type stage struct {
	progress models.SyncProgress
	run      func(ctx context.Context) *SyncResult
}

// FullSync runs users, libraries, items and activities in that order. The
// server's sync_progress is set to each stage before it runs and to
// completed when no stage errored. An authentication failure skips the
// remaining stages; other stage errors do not.
func (s *Syncer) FullSync(ctx context.Context, server *models.Server, client Client) *SyncResult {
	started := time.Now()
	stages := []stage{
		{models.ProgressUsers, func(ctx context.Context) *SyncResult { return s.SyncUsers(ctx, server, client) }},
		{models.ProgressLibraries, func(ctx context.Context) *SyncResult { return s.SyncLibraries(ctx, server, client) }},
		{models.ProgressItems, func(ctx context.Context) *SyncResult { return s.SyncItems(ctx, server, client, Options{}) }},
		{models.ProgressActivities, func(ctx context.Context) *SyncResult {
			return s.SyncActivities(ctx, server, client, Options{})
		}},
	}

	results := make([]*SyncResult, 0, len(stages))
	for _, st := range stages {
		if err := s.repo.UpdateSyncProgress(ctx, server.ID, st.progress); err != nil {
			results = append(results, Failure(string(st.progress), SyncMetrics{},
				fmt.Errorf("record progress: %w", err)))
			return record(ctx, aggregate(EntityFull, results, started))
		}
		logging.Ctx(ctx).Info().Str("stage", string(st.progress)).Msg("Full sync stage starting")

		r := st.run(ctx)
		results = append(results, r)
		if r.Status == StatusError && (errors.Is(r.Err, ErrAuth) || ctx.Err() != nil) {
			logging.Ctx(ctx).Error().Err(r.Err).Str("stage", string(st.progress)).Msg("Full sync aborted")
			return record(ctx, aggregate(EntityFull, results, started))
		}
	}

	out := aggregate(EntityFull, results, started)
	if out.Status != StatusError {
		if err := s.repo.UpdateSyncProgress(ctx, server.ID, models.ProgressCompleted); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("Failed to record full sync completion")
		}
	}
	return record(ctx, out)
}
