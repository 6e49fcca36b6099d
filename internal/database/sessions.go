// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tomtom215/mediasync/internal/database/query"
	"github.com/tomtom215/mediasync/internal/models"
)

const sessionColumns = `id, server_id, session_key, user_id, user_name, item_id, item_name, item_type,
	series_id, device_id, client, start_time, end_time, play_duration_seconds, position_ticks,
	runtime_ticks, percent_complete, completed, was_paused, play_method, is_transcoding,
	video_codec, audio_codec`

// InsertSessionRecord writes a finalized session. Records are immutable; a
// second insert with the same ID is ignored so retries are safe.
func (db *DB) InsertSessionRecord(ctx context.Context, r *models.SessionRecord) error {
	_, err := db.exec(ctx, "INSERT", "session_records", `
		INSERT INTO session_records (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, r.ServerID, r.SessionKey, nullString(r.UserID), nullString(r.UserName),
		nullString(r.ItemID), nullString(r.ItemName), nullString(r.ItemType),
		nullString(r.SeriesID), nullString(r.DeviceID), nullString(r.Client),
		r.StartTime.UTC(), r.EndTime.UTC(), r.PlayDurationSeconds, r.PositionTicks,
		r.RuntimeTicks, r.PercentComplete, r.Completed, r.WasPaused, nullString(r.PlayMethod),
		r.IsTranscoding, nullString(r.VideoCodec), nullString(r.AudioCodec))
	if err != nil {
		return fmt.Errorf("failed to insert session record %s: %w", r.ID, err)
	}
	return nil
}

// ListSessionRecords returns the newest session records of a server.
func (db *DB) ListSessionRecords(ctx context.Context, serverID string, limit int) ([]*models.SessionRecord, error) {
	limit = query.ClampLimit(limit, 100, 1000)
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM session_records
		WHERE server_id = ?
		ORDER BY end_time DESC, id
		LIMIT ?`, serverID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list session records: %w", err)
	}
	defer rows.Close()

	var out []*models.SessionRecord
	for rows.Next() {
		r, err := scanSessionRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanSessionRecord(row rowScanner) (*models.SessionRecord, error) {
	var r models.SessionRecord
	var user, userName, item, itemName, itemType, series, device, client sql.NullString
	var playMethod, video, audio sql.NullString
	var position, runtime sql.NullInt64
	if err := row.Scan(&r.ID, &r.ServerID, &r.SessionKey, &user, &userName, &item, &itemName, &itemType,
		&series, &device, &client, &r.StartTime, &r.EndTime, &r.PlayDurationSeconds, &position,
		&runtime, &r.PercentComplete, &r.Completed, &r.WasPaused, &playMethod, &r.IsTranscoding,
		&video, &audio); err != nil {
		return nil, err
	}
	r.UserID = user.String
	r.UserName = userName.String
	r.ItemID = item.String
	r.ItemName = itemName.String
	r.ItemType = itemType.String
	r.SeriesID = series.String
	r.DeviceID = device.String
	r.Client = client.String
	r.PositionTicks = position.Int64
	r.RuntimeTicks = runtime.Int64
	r.PlayMethod = playMethod.String
	r.VideoCodec = video.String
	r.AudioCodec = audio.String
	r.StartTime = r.StartTime.UTC()
	r.EndTime = r.EndTime.UTC()
	return &r, nil
}
