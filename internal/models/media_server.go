// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package models defines the data types shared by the store, the sync
// engine, the session poller and the admin API, together with the DTOs
// decoded from the Jellyfin REST API.
package models

import "time"

// SyncStatus is the coarse state of a server's synchronization.
type SyncStatus string

const (
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusSyncing   SyncStatus = "syncing"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncProgress is the stage a full sync last entered.
type SyncProgress string

const (
	ProgressNotStarted SyncProgress = "not_started"
	ProgressUsers      SyncProgress = "users"
	ProgressLibraries  SyncProgress = "libraries"
	ProgressItems      SyncProgress = "items"
	ProgressActivities SyncProgress = "activities"
	ProgressCompleted  SyncProgress = "completed"
)

// Server is a media server whose metadata is mirrored locally.
// APIKeyEncrypted is never serialized.
type Server struct {
	ID                string       `json:"id"`
	Name              string       `json:"name"`
	URL               string       `json:"url"`
	APIKeyEncrypted   string       `json:"-"`
	SyncStatus        SyncStatus   `json:"sync_status"`
	SyncProgress      SyncProgress `json:"sync_progress"`
	SyncError         string       `json:"sync_error,omitempty"`
	LastSyncStarted   *time.Time   `json:"last_sync_started,omitempty"`
	LastSyncCompleted *time.Time   `json:"last_sync_completed,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// IsSyncing reports whether the advisory sync lock is held.
func (s *Server) IsSyncing() bool {
	return s.SyncStatus == SyncStatusSyncing
}

// NeedsAttention is true when the last sync failed, or when the server
// has been "syncing" for longer than staleAfter (a crashed worker).
func (s *Server) NeedsAttention(now time.Time, staleAfter time.Duration) bool {
	if s.SyncStatus == SyncStatusFailed {
		return true
	}
	if s.SyncStatus == SyncStatusSyncing && s.LastSyncStarted != nil {
		return now.Sub(*s.LastSyncStarted) > staleAfter
	}
	return false
}

// ServerView is the admin API representation of a server.
type ServerView struct {
	*Server
	NeedsAttention bool `json:"needs_attention"`
}

// NormalizeTime converts t to UTC at microsecond precision, the resolution
// DuckDB TIMESTAMP columns keep. Values compared after a round-trip through
// the store must be normalized first.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}

// NormalizeTimePtr is NormalizeTime for optional values.
func NormalizeTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	n := NormalizeTime(*t)
	return &n
}
