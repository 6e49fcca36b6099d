// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
Package jobs is the durable job store.

Jobs are backlite tasks in a dedicated SQLite database. Every job name is
its own queue with its own timeout, attempt limit and backoff (see
Options), and its own concurrency cap on top of the shared worker pool.
Payloads form a closed set of types; one Dispatcher type switch routes
them to the sync orchestrator or the embedding pipeline.
*/
package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // backlite storage
	"github.com/mikestefanello/backlite"
	"golang.org/x/sync/semaphore"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
)

// Enqueuer submits jobs. Store is the production implementation.
type Enqueuer interface {
	Enqueue(ctx context.Context, p Payload) (string, error)
}

// Store wraps a backlite client.
type Store struct {
	client  *backlite.Client
	db      *sql.DB
	workers int

	mu         sync.RWMutex
	limits     map[Name]*semaphore.Weighted
	caps       map[Name]int
	handler    Handler
	registered bool
	started    bool
}

// NewStore opens the queue database, installs the backlite schema and
// applies the configured per-name options and concurrency caps.
func NewStore(cfg config.JobsConfig) (*Store, error) {
	if err := ApplyOverrides(cfg.Options); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal=WAL&_timeout=5000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open jobs database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Workers + 5)
	db.SetMaxIdleConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	client, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          logging.NewBackliteLogger(),
	})
	if err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to create backlite client: %w", err)
	}
	if err := client.Install(); err != nil {
		closeQuietly(db)
		return nil, fmt.Errorf("failed to install backlite schema: %w", err)
	}

	s := &Store{
		client:  client,
		db:      db,
		workers: cfg.Workers,
		limits:  make(map[Name]*semaphore.Weighted),
		caps:    make(map[Name]int),
	}
	for key, n := range cfg.Concurrency {
		name, err := ParseName(key)
		if err != nil {
			closeQuietly(db)
			return nil, fmt.Errorf("jobs.concurrency: %w", err)
		}
		s.Work(name, n)
	}
	return s, nil
}

// Work caps how many jobs of one name run at once. A cap of zero or less,
// or one above the worker count, leaves the name limited by the worker
// pool only.
func (s *Store) Work(name Name, concurrency int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if concurrency <= 0 || concurrency >= s.workers {
		delete(s.limits, name)
		delete(s.caps, name)
		return
	}
	s.limits[name] = semaphore.NewWeighted(int64(concurrency))
	s.caps[name] = concurrency
}

// Concurrency returns the configured cap of each limited job name.
func (s *Store) Concurrency() map[Name]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Name]int, len(s.caps))
	for k, v := range s.caps {
		out[k] = v
	}
	return out
}

// Register installs one queue per payload type, all routed to h. It must
// be called once, before Start.
func (s *Store) Register(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	if s.registered {
		return
	}
	s.registered = true

	s.client.Register(backlite.NewQueue(process[FullSyncPayload](s)))
	s.client.Register(backlite.NewQueue(process[UsersSyncPayload](s)))
	s.client.Register(backlite.NewQueue(process[LibrariesSyncPayload](s)))
	s.client.Register(backlite.NewQueue(process[ItemsSyncPayload](s)))
	s.client.Register(backlite.NewQueue(process[ActivitiesSyncPayload](s)))
	s.client.Register(backlite.NewQueue(process[RecentItemsSyncPayload](s)))
	s.client.Register(backlite.NewQueue(process[RecentActivitiesSyncPayload](s)))
	s.client.Register(backlite.NewQueue(process[GenerateEmbeddingsPayload](s)))
}

func process[T Payload](s *Store) backlite.QueueProcessor[T] {
	return func(ctx context.Context, p T) error {
		return s.run(ctx, p)
	}
}

func (s *Store) run(ctx context.Context, p Payload) error {
	s.mu.RLock()
	h := s.handler
	sem := s.limits[p.JobName()]
	s.mu.RUnlock()

	if sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("wait for %s slot: %w", p.JobName(), err)
		}
		defer sem.Release(1)
	}
	return h.Dispatch(ctx, p)
}

// Enqueue stores p and returns its job id. A payload without an id gets a
// new one.
func (s *Store) Enqueue(ctx context.Context, p Payload) (string, error) {
	s.mu.RLock()
	registered := s.registered
	s.mu.RUnlock()
	if !registered {
		return "", ErrNotStarted
	}

	meta := p.Meta()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	meta.EnqueuedAt = time.Now().UTC()
	p = p.withMeta(meta)

	if _, err := s.client.Add(p).Ctx(ctx).Save(); err != nil {
		return "", fmt.Errorf("failed to enqueue %s: %w", p.JobName(), err)
	}
	metrics.JobsEnqueued.WithLabelValues(string(p.JobName())).Inc()
	logging.Ctx(ctx).Debug().
		Str("job_id", meta.ID).
		Str("job_name", string(p.JobName())).
		Str("server_id", p.serverID()).
		Msg("Job enqueued")
	return meta.ID, nil
}

// Start begins processing. It returns immediately.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	logging.Info().Int("workers", s.workers).Msg("Job store started")
	s.client.Start(ctx)
}

// Stop waits for running jobs until ctx ends. It reports whether every
// worker finished in time.
func (s *Store) Stop(ctx context.Context) bool {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return true
	}
	s.started = false
	s.mu.Unlock()

	ok := s.client.Stop(ctx)
	if ok {
		logging.Info().Msg("Job store stopped gracefully")
	} else {
		logging.Warn().Msg("Job store stopped with timeout, some jobs may not have completed")
	}
	return ok
}

// Close releases the database. Call it after Stop.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the queue database.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func closeQuietly(db *sql.DB) {
	if err := db.Close(); err != nil {
		logging.Warn().Err(err).Msg("Failed to close jobs database")
	}
}
