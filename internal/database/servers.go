// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tomtom215/mediasync/internal/models"
)

const serverColumns = `id, name, url, api_key_encrypted, sync_status, sync_progress, sync_error,
	last_sync_started, last_sync_completed, created_at, updated_at`

// UpsertServer inserts a server or updates its name, URL and credentials.
// Sync state is never touched by this call.
func (db *DB) UpsertServer(ctx context.Context, s *models.Server) error {
	now := time.Now().UTC()
	_, err := db.exec(ctx, "UPSERT", "servers", `
		INSERT INTO servers (id, name, url, api_key_encrypted, sync_status, sync_progress, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', 'not_started', ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			url = EXCLUDED.url,
			api_key_encrypted = EXCLUDED.api_key_encrypted,
			updated_at = EXCLUDED.updated_at`,
		s.ID, s.Name, s.URL, s.APIKeyEncrypted, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert server %s: %w", s.ID, err)
	}
	return nil
}

// GetServer returns a server or ErrNotFound.
func (db *DB) GetServer(ctx context.Context, id string) (*models.Server, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT `+serverColumns+` FROM servers WHERE id = ?`, id)
	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get server %s: %w", id, err)
	}
	return s, nil
}

// ListServers returns every server ordered by id.
func (db *DB) ListServers(ctx context.Context) ([]*models.Server, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+serverColumns+` FROM servers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list servers: %w", err)
	}
	defer rows.Close()

	var out []*models.Server
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan server: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TryBeginSync takes the advisory sync lock in a single conditional
// UPDATE. It succeeds when the server is not syncing, or when the holder
// started before staleBefore (a worker that died mid-sync). It returns
// false, nil when another sync holds the lock.
func (db *DB) TryBeginSync(ctx context.Context, id string, now, staleBefore time.Time) (bool, error) {
	res, err := db.exec(ctx, "UPDATE", "servers", `
		UPDATE servers SET
			sync_status = 'syncing',
			sync_progress = 'not_started',
			sync_error = NULL,
			last_sync_started = ?,
			updated_at = ?
		WHERE id = ?
		  AND (sync_status <> 'syncing' OR last_sync_started IS NULL OR last_sync_started < ?)`,
		now.UTC(), now.UTC(), id, staleBefore.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to acquire sync lock for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

// UpdateSyncProgress records the full-sync stage a server has entered.
func (db *DB) UpdateSyncProgress(ctx context.Context, id string, progress models.SyncProgress) error {
	_, err := db.exec(ctx, "UPDATE", "servers",
		`UPDATE servers SET sync_progress = ?, updated_at = ? WHERE id = ?`,
		string(progress), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update sync progress for %s: %w", id, err)
	}
	return nil
}

// CompleteSync releases the lock with status completed. summary is kept
// as sync_error when non-empty (partial results).
func (db *DB) CompleteSync(ctx context.Context, id, summary string, now time.Time) error {
	_, err := db.exec(ctx, "UPDATE", "servers", `
		UPDATE servers SET sync_status = 'completed', sync_error = ?, last_sync_completed = ?, updated_at = ?
		WHERE id = ?`,
		nullString(summary), now.UTC(), now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to complete sync for %s: %w", id, err)
	}
	return nil
}

// FailSync releases the lock with status failed and a readable message.
func (db *DB) FailSync(ctx context.Context, id, message string, now time.Time) error {
	_, err := db.exec(ctx, "UPDATE", "servers",
		`UPDATE servers SET sync_status = 'failed', sync_error = ?, updated_at = ? WHERE id = ?`,
		nullString(message), now.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark sync failed for %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServer(row rowScanner) (*models.Server, error) {
	var (
		s                  models.Server
		status, progress   string
		syncErr            sql.NullString
		started, completed sql.NullTime
	)
	if err := row.Scan(&s.ID, &s.Name, &s.URL, &s.APIKeyEncrypted, &status, &progress, &syncErr,
		&started, &completed, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.SyncStatus = models.SyncStatus(status)
	s.SyncProgress = models.SyncProgress(progress)
	s.SyncError = syncErr.String
	s.LastSyncStarted = timePtr(started)
	s.LastSyncCompleted = timePtr(completed)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}
