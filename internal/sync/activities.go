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

	"github.com/tomtom215/mediasync/internal/database"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
)

// SyncActivities reconciles the activity log, which the server returns
// newest first.
//
// In intelligent mode the scan stops at the newest stored entry and only
// strictly newer entries are reconciled. The scan never reads more than
// ActivityMaxPages pages; when the bound is hit before the stored entry is
// seen, older entries in between are left unsynced, a warning is logged
// and Metrics.Truncated is set.
func (s *Syncer) SyncActivities(ctx context.Context, server *models.Server, client Client, opts Options) *SyncResult {
	started := time.Now()
	t := &tally{}
	entity := string(models.KindActivity)

	var latest *models.Activity
	if opts.Intelligent {
		a, err := s.repo.LatestActivity(ctx, server.ID)
		switch {
		case errors.Is(err, database.ErrNotFound):
		case err != nil:
			return record(ctx, t.result(entity, started, fmt.Errorf("load latest activity: %w", err)))
		default:
			latest = a
		}
	}

	pages := 0
	for start := 0; ; {
		if opts.Intelligent && pages >= s.cfg.ActivityMaxPages {
			t.truncate()
			metrics.SyncActivityTruncated.Inc()
			ev := logging.Ctx(ctx).Warn().Int("max_pages", s.cfg.ActivityMaxPages)
			if latest != nil {
				ev = ev.Int64("last_known_seq", latest.Seq)
			}
			ev.Msg("Activity sync stopped at page bound before reaching the last stored activity; older entries may be missing")
			break
		}

		resp, err := client.GetActivityLog(ctx, start, s.cfg.PageSize)
		if err != nil {
			return record(ctx, t.result(entity, started, &PageFetchError{Entity: entity, StartIndex: start, Err: err}))
		}
		t.page()
		pages++

		reachedKnown := false
		for i := range resp.Items {
			raw := &resp.Items[i]
			if latest != nil && raw.ID <= latest.Seq {
				reachedKnown = true
				break
			}
			a, err := mapActivity(server.ID, raw)
			if err != nil {
				t.failed(&RecordError{ExternalID: fmt.Sprint(raw.ID), Err: err})
				continue
			}
			reconcileInto(ctx, s.repo, t, a)
		}

		start += len(resp.Items)
		if reachedKnown || len(resp.Items) == 0 || start >= resp.TotalRecordCount {
			break
		}
		if err := s.pause(ctx); err != nil {
			return record(ctx, t.result(entity, started, err))
		}
	}
	return record(ctx, t.result(entity, started, nil))
}
