// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package main is the entry point of the MediaSync server.
//
// MediaSync mirrors users, libraries, items and activity logs of Jellyfin
// servers into DuckDB, tracks live playback sessions and generates item
// embeddings. Work runs on a durable backlite job queue fed by cron
// triggers and the admin API.
//
// # Startup order
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. DuckDB store, then servers from config seeded with encrypted keys
//  3. Job store, sync orchestrator, embedding pipeline and dispatcher
//  4. Scheduler, event publisher, websocket hub and session poller with
//     its BadgerDB journal
//  5. Supervisor tree with the data, processing and API layers
//
// # Configuration
//
// A single server can be declared through the environment:
//
//	export JELLYFIN_ENABLED=true
//	export JELLYFIN_URL=http://jellyfin:8096
//	export JELLYFIN_API_KEY=your-api-key
//	export CREDENTIAL_SECRET=$(openssl rand -base64 32)
//	./mediasync
//
// More servers go under servers: in config.yaml.
//
// # Signal handling
//
// SIGINT and SIGTERM cancel the supervisor tree. The HTTP server drains
// connections, the scheduler and poller stop, and the job queue waits
// for running jobs up to the shutdown timeout before the stores close.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize MediaSync")
	}
	defer app.Close()

	logging.Info().
		Int("servers", len(cfg.EffectiveServers())).
		Str("db_path", cfg.Database.Path).
		Str("jobs_db", cfg.Jobs.DBPath).
		Str("events", app.events.Transport()).
		Msg("Starting MediaSync with supervisor tree")

	if err := app.Run(ctx); err != nil {
		logging.Error().Err(err).Msg("Supervisor tree stopped with error")
	}
	logging.Info().Msg("MediaSync stopped")
}
