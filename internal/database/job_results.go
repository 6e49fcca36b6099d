// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/tomtom215/mediasync/internal/database/query"
	"github.com/tomtom215/mediasync/internal/models"
)

// InsertJobResult appends a bookkeeping row. CreatedAt defaults to now.
func (db *DB) InsertJobResult(ctx context.Context, r *models.JobResult) error {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	var payload sql.NullString
	if len(r.ResultPayload) > 0 {
		payload = sql.NullString{String: string(r.ResultPayload), Valid: true}
	}
	_, err := db.exec(ctx, "INSERT", "job_results", `
		INSERT INTO job_results (job_id, job_name, server_id, status, heartbeat,
			result_payload, error, processing_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobID, r.JobName, r.ServerID, string(r.Status), r.Heartbeat,
		payload, nullString(r.Error), r.ProcessingTimeMS, created.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert job result for %s: %w", r.JobID, err)
	}
	return nil
}

// ListJobResults returns bookkeeping rows newest first.
func (db *DB) ListJobResults(ctx context.Context, f models.JobResultFilter) ([]*models.JobResult, error) {
	where, args := query.NewWhereBuilder().
		Eq("job_id", f.JobID).
		Eq("job_name", f.JobName).
		Eq("server_id", f.ServerID).
		Eq("status", string(f.Status)).
		Build()
	args = append(args, query.ClampLimit(f.Limit, 50, 500))

	rows, err := db.conn.QueryContext(ctx, `
		SELECT seq, job_id, job_name, server_id, status, heartbeat, result_payload, error,
			processing_time_ms, created_at
		FROM job_results
		WHERE `+where+`
		ORDER BY seq DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list job results: %w", err)
	}
	defer rows.Close()

	var out []*models.JobResult
	for rows.Next() {
		var r models.JobResult
		var status string
		var payload, jobErr sql.NullString
		if err := rows.Scan(&r.Seq, &r.JobID, &r.JobName, &r.ServerID, &status, &r.Heartbeat,
			&payload, &jobErr, &r.ProcessingTimeMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan job result: %w", err)
		}
		r.Status = models.JobStatus(status)
		if payload.Valid {
			r.ResultPayload = []byte(payload.String)
		}
		r.Error = jobErr.String
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ListStaleJobs returns jobs named in jobNames whose newest row is still
// processing, that started before startedBefore and whose newest row is
// older than heartbeatBefore. Only jobs that write heartbeat rows belong
// in jobNames; an empty list matches nothing.
func (db *DB) ListStaleJobs(ctx context.Context, jobNames []string, startedBefore, heartbeatBefore time.Time) ([]*models.StaleJob, error) {
	if len(jobNames) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(jobNames)), ", ")
	args := make([]any, 0, len(jobNames)+2)
	for _, name := range jobNames {
		args = append(args, name)
	}
	args = append(args, startedBefore.UTC(), heartbeatBefore.UTC())

	rows, err := db.conn.QueryContext(ctx, `
		SELECT job_id,
			arg_max(job_name, seq) AS job_name,
			arg_max(server_id, seq) AS server_id,
			MIN(created_at) AS started_at,
			MAX(created_at) AS last_heartbeat
		FROM job_results
		WHERE job_name IN (`+placeholders+`)
		GROUP BY job_id
		HAVING arg_max(status, seq) = 'processing'
			AND MIN(created_at) < ?
			AND MAX(created_at) < ?
		ORDER BY started_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale jobs: %w", err)
	}
	defer rows.Close()

	var out []*models.StaleJob
	for rows.Next() {
		var j models.StaleJob
		if err := rows.Scan(&j.JobID, &j.JobName, &j.ServerID, &j.StartedAt, &j.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("failed to scan stale job: %w", err)
		}
		j.StartedAt = j.StartedAt.UTC()
		j.LastHeartbeat = j.LastHeartbeat.UTC()
		out = append(out, &j)
	}
	return out, rows.Err()
}
