// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sessions

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/mediasync/internal/models"
)

// TrackedSession is the in-memory state of one live playback session.
// PlayDuration only grows while the session is observed unpaused.
type TrackedSession struct {
	ServerID         string        `json:"server_id"`
	SessionKey       string        `json:"session_key"`
	SessionID        string        `json:"session_id"`
	UserID           string        `json:"user_id"`
	UserName         string        `json:"user_name,omitempty"`
	DeviceID         string        `json:"device_id"`
	DeviceName       string        `json:"device_name,omitempty"`
	Client           string        `json:"client,omitempty"`
	ItemID           string        `json:"item_id"`
	ItemName         string        `json:"item_name,omitempty"`
	ItemType         string        `json:"item_type,omitempty"`
	SeriesID         string        `json:"series_id,omitempty"`
	PositionTicks    int64         `json:"position_ticks"`
	RuntimeTicks     int64         `json:"runtime_ticks"`
	IsPaused         bool          `json:"is_paused"`
	WasPaused        bool          `json:"was_paused"`
	PlayDuration     time.Duration `json:"play_duration_ns"`
	StartTime        time.Time     `json:"start_time"`
	LastUpdateTime   time.Time     `json:"last_update_time"`
	LastActivityDate *time.Time    `json:"last_activity_date,omitempty"`
	LastPausedDate   *time.Time    `json:"last_paused_date,omitempty"`
	PlayMethod       string        `json:"play_method,omitempty"`
	IsTranscoding    bool          `json:"is_transcoding"`
	VideoCodec       string        `json:"video_codec,omitempty"`
	AudioCodec       string        `json:"audio_codec,omitempty"`
}

// Record projects a finished session onto its history row. Percent and
// completion are derived here and nowhere else.
func (t *TrackedSession) Record(endTime time.Time) *models.SessionRecord {
	percent := models.PercentComplete(t.PositionTicks, t.RuntimeTicks)
	return &models.SessionRecord{
		ID:                  uuid.NewString(),
		ServerID:            t.ServerID,
		SessionKey:          t.SessionKey,
		UserID:              t.UserID,
		UserName:            t.UserName,
		ItemID:              t.ItemID,
		ItemName:            t.ItemName,
		ItemType:            t.ItemType,
		SeriesID:            t.SeriesID,
		DeviceID:            t.DeviceID,
		Client:              t.Client,
		StartTime:           t.StartTime,
		EndTime:             endTime,
		PlayDurationSeconds: t.PlayDuration.Seconds(),
		PositionTicks:       t.PositionTicks,
		RuntimeTicks:        t.RuntimeTicks,
		PercentComplete:     percent,
		Completed:           models.IsCompleted(percent),
		WasPaused:           t.WasPaused,
		PlayMethod:          t.PlayMethod,
		IsTranscoding:       t.IsTranscoding,
		VideoCodec:          t.VideoCodec,
		AudioCodec:          t.AudioCodec,
	}
}

type arenaKey struct {
	serverID   string
	sessionKey string
}

// Arena holds every tracked session keyed by (serverID, sessionKey). The
// poller is its only writer; readers get copies.
type Arena struct {
	mu       sync.Mutex
	sessions map[arenaKey]*TrackedSession
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{sessions: make(map[arenaKey]*TrackedSession)}
}

// Reconcile applies one snapshot of a server's playable sessions at time
// now. New sessions start tracking, present ones accrue duration, and
// sessions missing from the snapshot are removed and returned with their
// final accrual applied. Observations sharing a key within one snapshot
// are merged into the first.
func (a *Arena) Reconcile(serverID string, observed []*models.JellyfinSession, now time.Time) []*TrackedSession {
	a.mu.Lock()
	defer a.mu.Unlock()

	seen := make(map[string]struct{}, len(observed))
	for _, s := range observed {
		key := keyOf(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		ak := arenaKey{serverID: serverID, sessionKey: key}
		if t, ok := a.sessions[ak]; ok {
			accrue(t, s, now)
			continue
		}
		a.sessions[ak] = track(serverID, key, s, now)
	}

	var ended []*TrackedSession
	for ak, t := range a.sessions {
		if ak.serverID != serverID {
			continue
		}
		if _, ok := seen[ak.sessionKey]; ok {
			continue
		}
		if !t.IsPaused {
			t.PlayDuration += positive(now.Sub(t.LastUpdateTime))
		}
		t.LastUpdateTime = now
		delete(a.sessions, ak)
		ended = append(ended, t)
	}
	sort.Slice(ended, func(i, j int) bool { return ended[i].StartTime.Before(ended[j].StartTime) })
	return ended
}

// Snapshot returns copies of a server's tracked sessions, oldest first.
func (a *Arena) Snapshot(serverID string) []TrackedSession {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]TrackedSession, 0)
	for ak, t := range a.sessions {
		if ak.serverID == serverID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].SessionKey < out[j].SessionKey
		}
		return out[i].StartTime.Before(out[j].StartTime)
	})
	return out
}

// Counts returns the number of tracked sessions per server.
func (a *Arena) Counts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int)
	for ak := range a.sessions {
		out[ak.serverID]++
	}
	return out
}

// Len returns the number of tracked sessions of one server.
func (a *Arena) Len(serverID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for ak := range a.sessions {
		if ak.serverID == serverID {
			n++
		}
	}
	return n
}

func track(serverID, key string, s *models.JellyfinSession, now time.Time) *TrackedSession {
	t := &TrackedSession{
		ServerID:   serverID,
		SessionKey: key,
		UserID:     s.UserID,
		DeviceID:   s.DeviceID,
		StartTime:  now,
	}
	observe(t, s, now)
	return t
}

// accrue adds the play time between the previous observation of t and s.
//
// The reference clock is the server's LastActivityDate when both
// observations carry one, else the local tick time. Only an unpaused
// previous state accrues: unpaused to unpaused adds the elapsed reference
// time, and unpaused to paused adds the time up to LastPausedDate when that
// falls inside the interval.
func accrue(t *TrackedSession, s *models.JellyfinSession, now time.Time) {
	from, to := t.LastUpdateTime, now
	if cur, ok := models.ParseJellyfinTime(s.LastActivityDate); ok && t.LastActivityDate != nil {
		from, to = *t.LastActivityDate, cur
	}

	if !t.IsPaused {
		elapsed := positive(to.Sub(from))
		if s.IsPaused() {
			if pausedAt, ok := models.ParseJellyfinTime(s.LastPausedDate); ok && pausedAt.After(from) && !pausedAt.After(to) {
				elapsed = pausedAt.Sub(from)
			}
		}
		t.PlayDuration += elapsed
	}
	observe(t, s, now)
}

// observe copies the mutable state of s onto t.
func observe(t *TrackedSession, s *models.JellyfinSession, now time.Time) {
	item := s.NowPlayingItem
	t.SessionID = s.ID
	t.UserName = s.UserName
	t.DeviceName = s.DeviceName
	t.Client = s.Client
	t.ItemID = item.ID
	t.ItemName = item.Name
	t.ItemType = item.Type
	t.SeriesID = item.SeriesID
	t.PositionTicks = s.PositionTicks()
	if item.RunTimeTicks > 0 {
		t.RuntimeTicks = item.RunTimeTicks
	}
	t.IsPaused = s.IsPaused()
	t.WasPaused = t.WasPaused || t.IsPaused
	t.PlayMethod = s.PlayMethod()
	t.IsTranscoding = s.IsTranscoding()
	if ti := s.TranscodingInfo; ti != nil {
		t.VideoCodec = ti.VideoCodec
		t.AudioCodec = ti.AudioCodec
	} else {
		t.VideoCodec, t.AudioCodec = "", ""
	}
	t.LastActivityDate = models.ParseJellyfinTimePtr(s.LastActivityDate)
	t.LastPausedDate = models.ParseJellyfinTimePtr(s.LastPausedDate)
	t.LastUpdateTime = now
}

func positive(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}
