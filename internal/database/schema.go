// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package database

import (
	"context"
	"fmt"
)

// TIMESTAMP rather than TIMESTAMPTZ: all values are written in UTC and
// TIMESTAMPTZ arithmetic needs the ICU extension.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS servers (
		id VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		url VARCHAR NOT NULL,
		api_key_encrypted VARCHAR NOT NULL,
		sync_status VARCHAR NOT NULL DEFAULT 'pending',
		sync_progress VARCHAR NOT NULL DEFAULT 'not_started',
		sync_error VARCHAR,
		last_sync_started TIMESTAMP,
		last_sync_completed TIMESTAMP,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		server_id VARCHAR NOT NULL,
		external_id VARCHAR NOT NULL,
		name VARCHAR NOT NULL,
		is_administrator BOOLEAN NOT NULL DEFAULT false,
		is_disabled BOOLEAN NOT NULL DEFAULT false,
		last_login_date TIMESTAMP,
		last_activity_date TIMESTAMP,
		synced_at TIMESTAMP NOT NULL,
		PRIMARY KEY (server_id, external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS libraries (
		server_id VARCHAR NOT NULL,
		external_id VARCHAR NOT NULL,
		name VARCHAR NOT NULL,
		collection_type VARCHAR,
		synced_at TIMESTAMP NOT NULL,
		PRIMARY KEY (server_id, external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS items (
		server_id VARCHAR NOT NULL,
		external_id VARCHAR NOT NULL,
		library_external_id VARCHAR,
		name VARCHAR NOT NULL,
		type VARCHAR,
		overview VARCHAR,
		production_year INTEGER,
		community_rating DOUBLE,
		official_rating VARCHAR,
		series_id VARCHAR,
		series_name VARCHAR,
		run_time_ticks BIGINT,
		genres VARCHAR,
		people VARCHAR,
		date_created TIMESTAMP,
		etag VARCHAR,
		processed BOOLEAN NOT NULL DEFAULT false,
		embedding FLOAT[],
		embedding_model VARCHAR,
		synced_at TIMESTAMP NOT NULL,
		PRIMARY KEY (server_id, external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS activities (
		server_id VARCHAR NOT NULL,
		external_id VARCHAR NOT NULL,
		seq BIGINT NOT NULL,
		name VARCHAR NOT NULL,
		type VARCHAR,
		short_overview VARCHAR,
		severity VARCHAR,
		user_id VARCHAR,
		item_id VARCHAR,
		date TIMESTAMP NOT NULL,
		synced_at TIMESTAMP NOT NULL,
		PRIMARY KEY (server_id, external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS session_records (
		id VARCHAR PRIMARY KEY,
		server_id VARCHAR NOT NULL,
		session_key VARCHAR NOT NULL,
		user_id VARCHAR,
		user_name VARCHAR,
		item_id VARCHAR,
		item_name VARCHAR,
		item_type VARCHAR,
		series_id VARCHAR,
		device_id VARCHAR,
		client VARCHAR,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NOT NULL,
		play_duration_seconds DOUBLE NOT NULL,
		position_ticks BIGINT,
		runtime_ticks BIGINT,
		percent_complete DOUBLE NOT NULL,
		completed BOOLEAN NOT NULL,
		was_paused BOOLEAN NOT NULL,
		play_method VARCHAR,
		is_transcoding BOOLEAN NOT NULL DEFAULT false,
		video_codec VARCHAR,
		audio_codec VARCHAR
	)`,
	`CREATE SEQUENCE IF NOT EXISTS job_results_seq START 1`,
	`CREATE TABLE IF NOT EXISTS job_results (
		seq BIGINT PRIMARY KEY DEFAULT nextval('job_results_seq'),
		job_id VARCHAR NOT NULL,
		job_name VARCHAR NOT NULL,
		server_id VARCHAR NOT NULL DEFAULT '',
		status VARCHAR NOT NULL,
		heartbeat BOOLEAN NOT NULL DEFAULT false,
		result_payload VARCHAR,
		error VARCHAR,
		processing_time_ms BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_results_job_id ON job_results(job_id)`,
	`CREATE INDEX IF NOT EXISTS idx_session_records_server ON session_records(server_id, end_time)`,
}

func (db *DB) createSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}
