// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package models

// SyncTriggerRequest is the optional body of POST /api/v1/servers/{id}/sync.
type SyncTriggerRequest struct {
	Type string `json:"type" validate:"omitempty,oneof=full users libraries items activities recent-items recent-activities"`
}

// SyncTriggerResponse acknowledges an enqueued job.
type SyncTriggerResponse struct {
	ServerID string `json:"server_id"`
	JobName  string `json:"job_name"`
	JobID    string `json:"job_id"`
}

// EmbeddingTriggerRequest is the optional body of POST /api/v1/servers/{id}/embeddings.
type EmbeddingTriggerRequest struct {
	BatchSize     int `json:"batch_size" validate:"omitempty,min=1,max=1000"`
	MaxIterations int `json:"max_iterations" validate:"omitempty,min=1,max=10000"`
}

// SchedulerUpdateRequest patches scheduler configuration. Nil fields are left unchanged.
type SchedulerUpdateRequest struct {
	Enabled          *bool   `json:"enabled,omitempty"`
	RecentActivities *string `json:"recent_activities,omitempty" validate:"omitempty,cron"`
	RecentItems      *string `json:"recent_items,omitempty" validate:"omitempty,cron"`
	Users            *string `json:"users,omitempty" validate:"omitempty,cron"`
	FullSync         *string `json:"full_sync,omitempty" validate:"omitempty,cron"`
	StaleSweep       *string `json:"stale_sweep,omitempty" validate:"omitempty,cron"`
}
