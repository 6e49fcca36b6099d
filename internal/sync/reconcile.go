// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/tomtom215/mediasync/internal/database"
	"github.com/tomtom215/mediasync/internal/models"
)

// Repository is the store contract the sync modules depend on.
type Repository interface {
	Upsert(ctx context.Context, e models.Entity) error
	FindOne(ctx context.Context, kind models.EntityKind, key models.EntityKey) (models.Entity, error)
	LatestActivity(ctx context.Context, serverID string) (*models.Activity, error)
	UpdateSyncProgress(ctx context.Context, serverID string, progress models.SyncProgress) error
}

// Fields that are bookkeeping rather than source data never count as a change.
var (
	userCmp = cmp.Options{
		cmpopts.IgnoreFields(models.User{}, "SyncedAt"),
	}
	libraryCmp = cmp.Options{
		cmpopts.IgnoreFields(models.Library{}, "SyncedAt"),
	}
	itemCmp = cmp.Options{
		cmpopts.IgnoreFields(models.Item{}, "Processed", "EmbeddingModel", "SyncedAt"),
		cmpopts.EquateEmpty(),
		cmpopts.EquateApprox(0, 1e-9),
	}
	activityCmp = cmp.Options{
		cmpopts.IgnoreFields(models.Activity{}, "SyncedAt"),
	}
)

// unchanged reports whether incoming carries nothing new relative to
// stored. Items short-circuit on the etag when both sides have one.
func unchanged(stored, incoming models.Entity) bool {
	switch in := incoming.(type) {
	case *models.User:
		st, ok := stored.(*models.User)
		return ok && cmp.Equal(*st, *in, userCmp)
	case *models.Library:
		st, ok := stored.(*models.Library)
		return ok && cmp.Equal(*st, *in, libraryCmp)
	case *models.Item:
		st, ok := stored.(*models.Item)
		if !ok {
			return false
		}
		if in.Etag != "" && st.Etag != "" {
			return in.Etag == st.Etag
		}
		return cmp.Equal(*st, *in, itemCmp)
	case *models.Activity:
		st, ok := stored.(*models.Activity)
		return ok && cmp.Equal(*st, *in, activityCmp)
	default:
		return false
	}
}

// reconcile classifies incoming against the store and writes it when it
// is new or changed.
func reconcile(ctx context.Context, repo Repository, incoming models.Entity) (change, error) {
	stored, err := repo.FindOne(ctx, incoming.Kind(), incoming.Key())
	switch {
	case errors.Is(err, database.ErrNotFound):
		if err := repo.Upsert(ctx, incoming); err != nil {
			return 0, fmt.Errorf("insert: %w", err)
		}
		return changeInserted, nil
	case err != nil:
		return 0, fmt.Errorf("lookup: %w", err)
	}

	// Recent-mode items arrive without their library; keep the stored one.
	if in, ok := incoming.(*models.Item); ok && in.LibraryExternalID == "" {
		if st, ok := stored.(*models.Item); ok {
			in.LibraryExternalID = st.LibraryExternalID
		}
	}

	if unchanged(stored, incoming) {
		return changeUnchanged, nil
	}
	if err := repo.Upsert(ctx, incoming); err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	return changeUpdated, nil
}

// reconcileInto runs reconcile and records the outcome on t.
func reconcileInto(ctx context.Context, repo Repository, t *tally, incoming models.Entity) {
	c, err := reconcile(ctx, repo, incoming)
	if err != nil {
		t.failed(&RecordError{ExternalID: incoming.Key().ExternalID, Err: err})
		return
	}
	t.processed(c)
}
