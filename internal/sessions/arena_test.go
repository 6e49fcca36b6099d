// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sessions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediasync/internal/models"
)

var t0 = time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

func jfTime(t time.Time) string { return t.Format("2006-01-02T15:04:05.0000000Z") }

func playing(user, device, item string, positionTicks int64, paused bool) *models.JellyfinSession {
	return &models.JellyfinSession{
		ID:       "sess-" + user + "-" + device,
		UserID:   user,
		UserName: "name-" + user,
		DeviceID: device,
		Client:   "Jellyfin Web",
		NowPlayingItem: &models.JellyfinNowPlayingItem{
			ID:           item,
			Name:         "Title " + item,
			Type:         "Movie",
			RunTimeTicks: 6_000_000_000,
		},
		PlayState: &models.JellyfinPlayState{
			PositionTicks: positionTicks,
			IsPaused:      paused,
			PlayMethod:    "DirectPlay",
		},
	}
}

func TestSessionKey_Deterministic(t *testing.T) {
	base := SessionKey("u1", "d1", "s1", "i1")
	assert.Equal(t, base, SessionKey("u1", "d1", "s1", "i1"))

	variants := map[string]string{
		"user":   SessionKey("u2", "d1", "s1", "i1"),
		"device": SessionKey("u1", "d2", "s1", "i1"),
		"series": SessionKey("u1", "d1", "", "i1"),
		"item":   SessionKey("u1", "d1", "s1", "i2"),
	}
	for field, key := range variants {
		assert.NotEqual(t, base, key, "changing %s must change the key", field)
	}

	assert.NotEqual(t, SessionKey("ab", "c", "", "i"), SessionKey("a", "bc", "", "i"))
	assert.Len(t, base, 36)
}

func TestIsPlayable(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.JellyfinSession)
		want   bool
	}{
		{"movie", func(*models.JellyfinSession) {}, true},
		{"idle", func(s *models.JellyfinSession) { s.NowPlayingItem = nil }, false},
		{"no item id", func(s *models.JellyfinSession) { s.NowPlayingItem.ID = "" }, false},
		{"trailer", func(s *models.JellyfinSession) { s.NowPlayingItem.Type = "Trailer" }, false},
		{"extra", func(s *models.JellyfinSession) { s.NowPlayingItem.ExtraType = "BehindTheScenes" }, false},
		{"preroll", func(s *models.JellyfinSession) { s.NowPlayingItem.Path = "/media/PreRolls/intro.mkv" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := playing("u", "d", "i", 0, false)
			tt.mutate(s)
			assert.Equal(t, tt.want, IsPlayable(s))
		})
	}
}

func reconcile(a *Arena, sec int, sessions ...*models.JellyfinSession) []*TrackedSession {
	return a.Reconcile("srv", sessions, at(sec))
}

func only(t *testing.T, a *Arena) TrackedSession {
	t.Helper()
	snap := a.Snapshot("srv")
	require.Len(t, snap, 1)
	return snap[0]
}

func TestArena_AccrualSequence(t *testing.T) {
	a := NewArena()

	assert.Empty(t, reconcile(a, 0, playing("u", "d", "i", 0, false)))
	assert.Zero(t, only(t, a).PlayDuration)

	reconcile(a, 5, playing("u", "d", "i", 50_000_000, false))
	assert.Equal(t, 5*time.Second, only(t, a).PlayDuration)

	paused := playing("u", "d", "i", 100_000_000, true)
	paused.LastPausedDate = jfTime(at(10))
	reconcile(a, 10, paused)
	assert.Equal(t, 10*time.Second, only(t, a).PlayDuration)

	reconcile(a, 15, paused)
	assert.Equal(t, 10*time.Second, only(t, a).PlayDuration)

	ended := reconcile(a, 20)
	require.Len(t, ended, 1)
	assert.Equal(t, 10*time.Second, ended[0].PlayDuration)
	assert.True(t, ended[0].WasPaused)
	assert.Zero(t, a.Len("srv"))
}

func TestArena_PauseInsideInterval(t *testing.T) {
	a := NewArena()
	reconcile(a, 0, playing("u", "d", "i", 0, false))

	paused := playing("u", "d", "i", 40_000_000, true)
	paused.LastPausedDate = jfTime(at(4))
	reconcile(a, 10, paused)
	assert.Equal(t, 4*time.Second, only(t, a).PlayDuration)

	// Resuming adds nothing on the resume tick, then accrues again.
	reconcile(a, 20, playing("u", "d", "i", 40_000_000, false))
	assert.Equal(t, 4*time.Second, only(t, a).PlayDuration)
	reconcile(a, 25, playing("u", "d", "i", 90_000_000, false))
	assert.Equal(t, 9*time.Second, only(t, a).PlayDuration)
}

func TestArena_PauseDateOutsideIntervalUsesElapsed(t *testing.T) {
	a := NewArena()
	reconcile(a, 0, playing("u", "d", "i", 0, false))

	paused := playing("u", "d", "i", 0, true)
	paused.LastPausedDate = jfTime(t0.Add(-time.Hour))
	reconcile(a, 6, paused)
	assert.Equal(t, 6*time.Second, only(t, a).PlayDuration)
}

func TestArena_PrefersServerActivityClock(t *testing.T) {
	a := NewArena()

	first := playing("u", "d", "i", 0, false)
	first.LastActivityDate = jfTime(at(100))
	reconcile(a, 0, first)

	second := playing("u", "d", "i", 0, false)
	second.LastActivityDate = jfTime(at(103))
	reconcile(a, 5, second)
	assert.Equal(t, 3*time.Second, only(t, a).PlayDuration)

	// Without a server date on the current observation the local tick wins.
	reconcile(a, 9, playing("u", "d", "i", 0, false))
	assert.Equal(t, 7*time.Second, only(t, a).PlayDuration)
}

func TestArena_EndWhileUnpausedAddsFinalInterval(t *testing.T) {
	a := NewArena()
	reconcile(a, 0, playing("u", "d", "i", 0, false))
	reconcile(a, 5, playing("u", "d", "i", 0, false))

	ended := reconcile(a, 8)
	require.Len(t, ended, 1)
	assert.Equal(t, 8*time.Second, ended[0].PlayDuration)
	assert.Equal(t, at(0), ended[0].StartTime)
}

func TestArena_MergesDuplicateKeys(t *testing.T) {
	a := NewArena()
	reconcile(a, 0, playing("u", "d", "i", 0, false), playing("u", "d", "i", 10, false))
	assert.Equal(t, 1, a.Len("srv"))
}

func TestArena_ServersAreIndependent(t *testing.T) {
	a := NewArena()
	a.Reconcile("a", []*models.JellyfinSession{playing("u", "d", "i", 0, false)}, at(0))
	a.Reconcile("b", []*models.JellyfinSession{playing("u", "d", "i", 0, false)}, at(0))

	ended := a.Reconcile("b", nil, at(5))
	require.Len(t, ended, 1)
	assert.Equal(t, "b", ended[0].ServerID)
	assert.Equal(t, map[string]int{"a": 1}, a.Counts())
}

func TestArena_SnapshotIsCopy(t *testing.T) {
	a := NewArena()
	reconcile(a, 0, playing("u", "d", "i", 0, false))

	snap := a.Snapshot("srv")
	snap[0].PlayDuration = time.Hour
	assert.Zero(t, only(t, a).PlayDuration)
	assert.Empty(t, a.Snapshot("other"))
}

func TestTrackedSession_RecordCompletion(t *testing.T) {
	tests := []struct {
		name      string
		position  int64
		runtime   int64
		percent   float64
		completed bool
	}{
		{"exactly ninety", 5_400_000_000, 6_000_000_000, 90.0, false},
		{"above threshold", 5_500_000_000, 6_000_000_000, 91.6667, true},
		{"unknown runtime", 5_500_000_000, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := &TrackedSession{
				ServerID:      "srv",
				PositionTicks: tt.position,
				RuntimeTicks:  tt.runtime,
				PlayDuration:  90 * time.Second,
				StartTime:     at(0),
			}
			rec := ts.Record(at(100))
			assert.InDelta(t, tt.percent, rec.PercentComplete, 0.001)
			assert.Equal(t, tt.completed, rec.Completed)
			assert.Equal(t, 90.0, rec.PlayDurationSeconds)
			assert.NotEmpty(t, rec.ID)
			assert.Equal(t, at(100), rec.EndTime)
		})
	}
}
