// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package models

import (
	"time"

	"github.com/goccy/go-json"
)

// JobStatus is the status recorded in a JobResult row.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobResult is one append-only bookkeeping row for a job execution. A
// job's current status is the status of its newest row. Heartbeat rows
// are processing rows written while a long job is alive.
type JobResult struct {
	Seq              int64           `json:"seq"`
	JobID            string          `json:"job_id"`
	JobName          string          `json:"job_name"`
	ServerID         string          `json:"server_id,omitempty"`
	Status           JobStatus       `json:"status"`
	Heartbeat        bool            `json:"heartbeat"`
	ResultPayload    json.RawMessage `json:"result_payload,omitempty"`
	Error            string          `json:"error,omitempty"`
	ProcessingTimeMS int64           `json:"processing_time_ms"`
	CreatedAt        time.Time       `json:"created_at"`
}

// JobResultFilter narrows ListJobResults. Zero values match everything.
type JobResultFilter struct {
	JobID    string
	JobName  string
	ServerID string
	Status   JobStatus
	Limit    int
}

// StaleJob identifies a job whose newest bookkeeping row is still
// processing but which has stopped heartbeating.
type StaleJob struct {
	JobID         string    `json:"job_id"`
	JobName       string    `json:"job_name"`
	ServerID      string    `json:"server_id,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}
