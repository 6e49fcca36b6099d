// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package models

import "time"

// CompletionThreshold is the percentComplete above which a session counts
// as completed.
const CompletionThreshold = 90.0

// SessionRecord is the immutable history row written when a tracked
// playback session ends.
type SessionRecord struct {
	ID                  string    `json:"id"`
	ServerID            string    `json:"server_id"`
	SessionKey          string    `json:"session_key"`
	UserID              string    `json:"user_id"`
	UserName            string    `json:"user_name,omitempty"`
	ItemID              string    `json:"item_id"`
	ItemName            string    `json:"item_name,omitempty"`
	ItemType            string    `json:"item_type,omitempty"`
	SeriesID            string    `json:"series_id,omitempty"`
	DeviceID            string    `json:"device_id"`
	Client              string    `json:"client,omitempty"`
	StartTime           time.Time `json:"start_time"`
	EndTime             time.Time `json:"end_time"`
	PlayDurationSeconds float64   `json:"play_duration_seconds"`
	PositionTicks       int64     `json:"position_ticks"`
	RuntimeTicks        int64     `json:"runtime_ticks"`
	PercentComplete     float64   `json:"percent_complete"`
	Completed           bool      `json:"completed"`
	WasPaused           bool      `json:"was_paused"`
	PlayMethod          string    `json:"play_method,omitempty"`
	IsTranscoding       bool      `json:"is_transcoding"`
	VideoCodec          string    `json:"video_codec,omitempty"`
	AudioCodec          string    `json:"audio_codec,omitempty"`
}

// PercentComplete returns position/runtime*100, or 0 when runtime is unknown.
func PercentComplete(positionTicks, runtimeTicks int64) float64 {
	if runtimeTicks <= 0 {
		return 0
	}
	return float64(positionTicks) / float64(runtimeTicks) * 100
}

// IsCompleted applies the completion threshold.
func IsCompleted(percent float64) bool {
	return percent > CompletionThreshold
}
