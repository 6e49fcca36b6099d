// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/models"
)

// Kind names a sync run.
type Kind string

const (
	KindFull             Kind = "full"
	KindUsers            Kind = "users"
	KindLibraries        Kind = "libraries"
	KindItems            Kind = "items"
	KindActivities       Kind = "activities"
	KindRecentItems      Kind = "recent-items"
	KindRecentActivities Kind = "recent-activities"
)

// LockStore holds the per-server sync lock and status columns.
type LockStore interface {
	GetServer(ctx context.Context, id string) (*models.Server, error)
	TryBeginSync(ctx context.Context, id string, now, staleBefore time.Time) (bool, error)
	CompleteSync(ctx context.Context, id, summary string, now time.Time) error
	FailSync(ctx context.Context, id, message string, now time.Time) error
}

// Orchestrator runs sync kinds for a server under its sync lock. It is the
// entry point for the job handlers.
type Orchestrator struct {
	syncer    *Syncer
	locks     LockStore
	clients   ClientProvider
	staleLock time.Duration
	now       func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(repo Repository, locks LockStore, clients ClientProvider, cfg config.SyncConfig) *Orchestrator {
	staleLock := cfg.StaleLockAfter
	if staleLock <= 0 {
		staleLock = 6 * time.Hour
	}
	return &Orchestrator{
		syncer:    NewSyncer(repo, cfg),
		locks:     locks,
		clients:   clients,
		staleLock: staleLock,
		now:       time.Now,
	}
}

// Run executes kind for serverID.
//
// It returns ErrAlreadySyncing without doing anything when another run
// holds the lock. An error result marks the server failed and is also
// returned as an error so the job is retried; success and partial results
// mark it completed.
func (o *Orchestrator) Run(ctx context.Context, serverID string, kind Kind) (*SyncResult, error) {
	ctx = logging.ContextWithServer(ctx, serverID)

	server, err := o.locks.GetServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("load server %s: %w", serverID, err)
	}

	now := o.now()
	acquired, err := o.locks.TryBeginSync(ctx, serverID, now, now.Add(-o.staleLock))
	if err != nil {
		return nil, err
	}
	if !acquired {
		logging.Ctx(ctx).Info().Str("kind", string(kind)).Msg("Server already syncing, skipping")
		return nil, ErrAlreadySyncing
	}

	// Releasing the lock must survive job cancellation.
	releaseCtx := context.WithoutCancel(ctx)

	client, err := o.clients.For(server)
	if err != nil {
		o.fail(releaseCtx, serverID, err.Error())
		return nil, err
	}

	result, err := o.dispatch(ctx, server, client, kind)
	if err != nil {
		o.fail(releaseCtx, serverID, err.Error())
		return nil, err
	}

	if result.Status == StatusError {
		o.fail(releaseCtx, serverID, result.Message)
		return result, fmt.Errorf("%s sync failed for %s: %w", kind, serverID, result.Err)
	}
	if err := o.locks.CompleteSync(releaseCtx, serverID, result.Summary(), o.now()); err != nil {
		return result, fmt.Errorf("release sync lock: %w", err)
	}
	return result, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, server *models.Server, client Client, kind Kind) (*SyncResult, error) {
	switch kind {
	case KindFull:
		return o.syncer.FullSync(ctx, server, client), nil
	case KindUsers:
		return o.syncer.SyncUsers(ctx, server, client), nil
	case KindLibraries:
		return o.syncer.SyncLibraries(ctx, server, client), nil
	case KindItems:
		return o.syncer.SyncItems(ctx, server, client, Options{}), nil
	case KindRecentItems:
		return o.syncer.SyncItems(ctx, server, client, Options{Recent: true}), nil
	case KindActivities:
		return o.syncer.SyncActivities(ctx, server, client, Options{}), nil
	case KindRecentActivities:
		return o.syncer.SyncActivities(ctx, server, client, Options{Intelligent: true}), nil
	default:
		return nil, fmt.Errorf("unknown sync kind %q", kind)
	}
}

func (o *Orchestrator) fail(ctx context.Context, serverID, message string) {
	if err := o.locks.FailSync(ctx, serverID, message, o.now()); err != nil {
		logging.Ctx(ctx).Error().Err(err).Msg("Failed to mark sync failed")
	}
}
