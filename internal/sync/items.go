// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/models"
)

// SyncItems reconciles items. In full mode it pages through every content
// library, up to LibraryConcurrency libraries at once and ItemConcurrency
// upserts at once within each library. In recent mode it fetches the
// newest RecentItemsLimit items instead.
func (s *Syncer) SyncItems(ctx context.Context, server *models.Server, client Client, opts Options) *SyncResult {
	started := time.Now()
	t := &tally{}
	entity := string(models.KindItem)

	if opts.Recent {
		return record(ctx, t.result(entity, started, s.syncRecentItems(ctx, server, client, t)))
	}

	libs, err := client.GetLibraries(ctx)
	if err != nil {
		return record(ctx, t.result(entity, started, &PageFetchError{Entity: entity, Err: err}))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.LibraryConcurrency)
	for i := range libs {
		lib := libs[i]
		if !IsContentLibrary(&lib) || lib.ID == "" {
			continue
		}
		g.Go(func() error {
			return s.syncLibraryItems(gctx, server, client, lib.ID, t)
		})
	}
	return record(ctx, t.result(entity, started, g.Wait()))
}

// syncLibraryItems pages through one library. A page failure is returned
// and cancels the sibling libraries.
func (s *Syncer) syncLibraryItems(ctx context.Context, server *models.Server, client Client, libraryID string, t *tally) error {
	entity := string(models.KindItem)
	sem := semaphore.NewWeighted(int64(s.cfg.ItemConcurrency))

	for start := 0; ; {
		resp, err := client.GetItems(ctx, ItemsQuery{ParentID: libraryID, StartIndex: start, Limit: s.cfg.PageSize})
		if err != nil {
			return &PageFetchError{Entity: entity, StartIndex: start, Err: err}
		}
		t.page()

		for i := range resp.Items {
			raw := &resp.Items[i]
			item, err := mapItem(server.ID, libraryID, raw)
			if err != nil {
				t.failed(&RecordError{ExternalID: raw.ID, Err: err})
				continue
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				drain(sem, s.cfg.ItemConcurrency)
				return err
			}
			go func() {
				defer sem.Release(1)
				reconcileInto(ctx, s.repo, t, item)
			}()
		}
		drain(sem, s.cfg.ItemConcurrency)

		start += len(resp.Items)
		if len(resp.Items) == 0 || len(resp.Items) < s.cfg.PageSize || start >= resp.TotalRecordCount {
			logging.Ctx(ctx).Debug().Str("library_id", libraryID).Int("items", start).Msg("Library items synced")
			return nil
		}
		if err := s.pause(ctx); err != nil {
			return err
		}
	}
}

// syncRecentItems reconciles the newest items across all libraries.
func (s *Syncer) syncRecentItems(ctx context.Context, server *models.Server, client Client, t *tally) error {
	entity := string(models.KindItem)
	limit := s.cfg.RecentItemsLimit
	pageSize := min(s.cfg.PageSize, limit)

	for start := 0; start < limit; {
		resp, err := client.GetItems(ctx, ItemsQuery{StartIndex: start, Limit: min(pageSize, limit-start), Recent: true})
		if err != nil {
			return &PageFetchError{Entity: entity, StartIndex: start, Err: err}
		}
		t.page()

		for i := range resp.Items {
			raw := &resp.Items[i]
			item, err := mapItem(server.ID, "", raw)
			if err != nil {
				t.failed(&RecordError{ExternalID: raw.ID, Err: err})
				continue
			}
			reconcileInto(ctx, s.repo, t, item)
		}

		start += len(resp.Items)
		if len(resp.Items) == 0 || start >= resp.TotalRecordCount {
			return nil
		}
		if err := s.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

// drain waits for every in-flight upsert of a page, even after
// cancellation, so no worker outlives the module.
func drain(sem *semaphore.Weighted, n int) {
	_ = sem.Acquire(context.Background(), int64(n))
	sem.Release(int64(n))
}
