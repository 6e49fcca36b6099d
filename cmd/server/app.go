// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"

	"github.com/tomtom215/mediasync/internal/api"
	"github.com/tomtom215/mediasync/internal/cache"
	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/database"
	"github.com/tomtom215/mediasync/internal/embedding"
	"github.com/tomtom215/mediasync/internal/events"
	"github.com/tomtom215/mediasync/internal/jobs"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/models"
	"github.com/tomtom215/mediasync/internal/scheduler"
	"github.com/tomtom215/mediasync/internal/sessions"
	"github.com/tomtom215/mediasync/internal/supervisor"
	"github.com/tomtom215/mediasync/internal/supervisor/services"
	syncer "github.com/tomtom215/mediasync/internal/sync"
	"github.com/tomtom215/mediasync/internal/wal"
	"github.com/tomtom215/mediasync/internal/websocket"
)

// app owns every long-lived component. Close releases them in reverse
// order of construction.
type app struct {
	cfg     *config.Config
	db      *database.DB
	store   *jobs.Store
	vectors cache.Vectors
	events  *events.Publisher
	sched   *scheduler.Scheduler
	poller  *sessions.Poller
	journal *wal.Journal
	hub     *websocket.Hub
	bridge  *websocket.Bridge
	server  *http.Server
	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	ready := false
	defer func() {
		if !ready {
			a.Close()
		}
	}()

	if err := jobs.ApplyOverrides(cfg.Jobs.Options); err != nil {
		return nil, fmt.Errorf("invalid job options: %w", err)
	}

	var err error
	a.db, err = database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.closers = append(a.closers, a.db.Close)

	enc, err := newEncryptor(cfg.Security.CredentialSecret)
	if err != nil {
		return nil, err
	}
	if err := seedServers(ctx, a.db, cfg.EffectiveServers(), enc); err != nil {
		return nil, err
	}

	a.store, err = jobs.NewStore(cfg.Jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	// A nil *CredentialEncryptor must not become a non-nil interface.
	var decrypter syncer.Decrypter
	if enc != nil {
		decrypter = enc
	}
	clients := syncer.NewClientFactory(cfg.Sync.Client, decrypter)
	orchestrator := syncer.NewOrchestrator(a.db, a.db, clients, cfg.Sync)

	a.vectors, err = cache.New(ctx, cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector cache: %w", err)
	}
	a.closers = append(a.closers, a.vectors.Close)

	pipeline := embedding.NewPipeline(cfg.Embedding, a.db, a.db, a.store, embedding.WithCache(a.vectors))
	a.store.Register(jobs.NewDispatcher(orchestrator, pipeline, a.db))

	a.sched = scheduler.New(cfg.Scheduler, scheduler.Deps{
		Servers:        a.db,
		Jobs:           a.store,
		Sweeper:        embedding.NewSweeper(a.db, cfg.Embedding.StaleAfter, cfg.Embedding.HeartbeatGrace),
		StaleLockAfter: cfg.Sync.StaleLockAfter,
	})

	a.events, err = events.New(cfg.Events)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	a.closers = append(a.closers, a.events.Close)

	a.hub = websocket.NewHub()
	a.bridge = websocket.NewBridge(a.events, a.hub)

	deps := api.Deps{
		Store:          a.db,
		Jobs:           a.store,
		Scheduler:      a.sched,
		Embeddings:     pipeline,
		StaleLockAfter: cfg.Sync.StaleLockAfter,
		Stream:         a.hub,
		AllowedOrigins: cfg.HTTP.CORSOrigins,
		Health: map[string]func(context.Context) error{
			"database":  a.db.Ping,
			"job_queue": a.store.Ping,
		},
	}
	if pinger, ok := a.vectors.(interface{ Ping(context.Context) error }); ok {
		deps.Health["vector_cache"] = pinger.Ping
	}

	if cfg.Sessions.Enabled {
		sources := func(s *models.Server) (sessions.SessionSource, error) {
			return clients.For(s)
		}
		opts := []sessions.Option{sessions.WithPublisher(a.events)}
		if cfg.Sessions.Journal.Path != "" {
			a.journal, err = wal.Open(cfg.Sessions.Journal)
			if err != nil {
				return nil, fmt.Errorf("failed to open session journal: %w", err)
			}
			a.closers = append(a.closers, a.journal.Close)
			opts = append(opts, sessions.WithJournal(a.journal))
		}
		a.poller = sessions.NewPoller(cfg.Sessions, a.db, sources, opts...)
		deps.Poller = a.poller
	}

	a.server = &http.Server{
		Addr:         net.JoinHostPort(cfg.HTTP.Host, strconv.Itoa(cfg.HTTP.Port)),
		Handler:      api.NewRouter(api.NewHandler(deps), api.NewMiddleware(cfg.HTTP)),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	ready = true
	return a, nil
}

// Run serves every component under the supervisor tree until ctx ends.
func (a *app) Run(ctx context.Context) error {
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: a.cfg.HTTP.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create supervisor tree: %w", err)
	}

	tree.AddDataService(services.NewJobQueueService(a.store, a.cfg.HTTP.ShutdownTimeout))
	if a.journal != nil {
		tree.AddDataService(wal.NewCompactor(a.journal))
	}
	tree.AddProcessingService(services.NewLifecycleService("scheduler", a.sched))
	if a.poller != nil {
		tree.AddProcessingService(services.NewLifecycleService("session-poller", a.poller))
	}
	tree.AddProcessingService(a.bridge)
	tree.AddAPIService(a.hub)
	tree.AddAPIService(services.NewHTTPServerService(a.server, a.cfg.HTTP.ShutdownTimeout))

	err = tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop before the shutdown timeout")
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases components in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logging.Error().Err(err).Msg("Error during shutdown")
		}
	}
	a.closers = nil
}
