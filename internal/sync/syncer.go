// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
)

// Options select module variants.
type Options struct {
	// Recent makes the items module fetch only the newest items.
	Recent bool
	// Intelligent makes the activities module stop at the newest stored entry.
	Intelligent bool
}

// Syncer runs the entity modules against one repository.
type Syncer struct {
	repo Repository
	cfg  config.SyncConfig
}

// NewSyncer creates a Syncer. Zero config values fall back to defaults.
func NewSyncer(repo Repository, cfg config.SyncConfig) *Syncer {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.LibraryConcurrency <= 0 {
		cfg.LibraryConcurrency = 1
	}
	if cfg.ItemConcurrency <= 0 {
		cfg.ItemConcurrency = 1
	}
	if cfg.ActivityMaxPages <= 0 {
		cfg.ActivityMaxPages = 10
	}
	if cfg.RecentItemsLimit <= 0 {
		cfg.RecentItemsLimit = 100
	}
	return &Syncer{repo: repo, cfg: cfg}
}

// record logs and exports a finished module result.
func record(ctx context.Context, r *SyncResult) *SyncResult {
	m := r.Metrics
	metrics.RecordSyncResult(r.Entity, string(r.Status), m.Duration,
		m.ItemsInserted, m.ItemsUpdated, m.ItemsUnchanged, m.ItemsErrored)

	logger := logging.Ctx(ctx)
	var event *zerolog.Event
	switch r.Status {
	case StatusError:
		event = logger.Error().Err(r.Err)
	case StatusPartial:
		event = logger.Warn().Strs("errors", r.Errors)
	default:
		event = logger.Info()
	}
	event.
		Str("entity", r.Entity).
		Str("status", string(r.Status)).
		Int("processed", m.ItemsProcessed).
		Int("inserted", m.ItemsInserted).
		Int("updated", m.ItemsUpdated).
		Int("unchanged", m.ItemsUnchanged).
		Int("errored", m.ItemsErrored).
		Int("pages", m.PagesFetched).
		Dur("duration", m.Duration).
		Msg("Sync finished")
	return r
}

// pause waits between pages.
func (s *Syncer) pause(ctx context.Context) error {
	if s.cfg.PageDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.cfg.PageDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SyncUsers reconciles /Users.
func (s *Syncer) SyncUsers(ctx context.Context, server *models.Server, client Client) *SyncResult {
	started := time.Now()
	t := &tally{}

	users, err := client.GetUsers(ctx)
	if err != nil {
		return record(ctx, t.result(string(models.KindUser), started,
			&PageFetchError{Entity: string(models.KindUser), Err: err}))
	}
	t.page()

	for i := range users {
		u, err := mapUser(server.ID, &users[i])
		if err != nil {
			t.failed(&RecordError{ExternalID: users[i].ID, Err: err})
			continue
		}
		reconcileInto(ctx, s.repo, t, u)
	}
	return record(ctx, t.result(string(models.KindUser), started, nil))
}

// SyncLibraries reconciles the content media folders.
func (s *Syncer) SyncLibraries(ctx context.Context, server *models.Server, client Client) *SyncResult {
	started := time.Now()
	t := &tally{}

	libs, err := client.GetLibraries(ctx)
	if err != nil {
		return record(ctx, t.result(string(models.KindLibrary), started,
			&PageFetchError{Entity: string(models.KindLibrary), Err: err}))
	}
	t.page()

	for i := range libs {
		if !IsContentLibrary(&libs[i]) {
			continue
		}
		l, err := mapLibrary(server.ID, &libs[i])
		if err != nil {
			t.failed(&RecordError{ExternalID: libs[i].ID, Err: err})
			continue
		}
		reconcileInto(ctx, s.repo, t, l)
	}
	return record(ctx, t.result(string(models.KindLibrary), started, nil))
}
