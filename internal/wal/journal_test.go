// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package wal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/models"
)

func openTest(t *testing.T, cfg config.JournalConfig) *Journal {
	t.Helper()
	j, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func record(id string) *models.SessionRecord {
	return &models.SessionRecord{ID: id, ServerID: "jf1", SessionKey: "key-" + id, UserID: "alice", PlayDurationSeconds: 120}
}

func TestJournal_AppendRemove(t *testing.T) {
	ctx := context.Background()
	j := openTest(t, config.JournalConfig{})

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	require.NoError(t, j.Append(ctx, record("b")))
	require.NoError(t, j.Append(ctx, record("a")))
	require.NoError(t, j.Append(ctx, record("b")), "appending twice keeps one entry")

	recs, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[0].ID, "oldest first")
	assert.Equal(t, "a", recs[1].ID)
	assert.Equal(t, "key-b", recs[0].SessionKey)

	require.NoError(t, j.Remove(ctx, "b"))
	require.NoError(t, j.Remove(ctx, "missing"))
	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestJournal_RecordFailure(t *testing.T) {
	ctx := context.Background()
	j := openTest(t, config.JournalConfig{})

	require.NoError(t, j.Append(ctx, record("a")))
	require.NoError(t, j.RecordFailure(ctx, "a", errors.New("database is locked")))
	require.NoError(t, j.RecordFailure(ctx, "a", errors.New("still locked")))
	require.NoError(t, j.RecordFailure(ctx, "missing", errors.New("ignored")))

	entries, err := j.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 2, entries[0].Attempts)
	assert.Equal(t, "still locked", entries[0].LastError)
	assert.NotNil(t, entries[0].LastAttemptAt)
}

func TestJournal_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	cfg := config.JournalConfig{Path: t.TempDir(), SyncWrites: true}

	j, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, j.Append(ctx, record("a")))
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	j = openTest(t, cfg)
	recs, err := j.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "a", recs[0].ID)
	assert.NoError(t, j.RunGC())
}

func TestJournal_Closed(t *testing.T) {
	ctx := context.Background()
	j, err := Open(config.JournalConfig{})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	assert.ErrorIs(t, j.Append(ctx, record("a")), ErrClosed)
	assert.ErrorIs(t, j.Remove(ctx, "a"), ErrClosed)
	_, err = j.Pending(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, j.RunGC(), ErrClosed)
}

func TestJournal_RejectsEmptyID(t *testing.T) {
	j := openTest(t, config.JournalConfig{})
	assert.ErrorIs(t, j.Append(context.Background(), &models.SessionRecord{}), ErrEmptyID)
	assert.ErrorIs(t, j.Append(context.Background(), nil), ErrEmptyID)
}

func TestJournal_InMemoryGC(t *testing.T) {
	j := openTest(t, config.JournalConfig{})
	assert.NoError(t, j.RunGC())
}

func TestCompactor_ServeStops(t *testing.T) {
	j := openTest(t, config.JournalConfig{GCInterval: 5 * time.Millisecond})
	c := NewCompactor(j)
	assert.Equal(t, "session-journal-gc", c.String())
	assert.Equal(t, 5*time.Millisecond, c.interval)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Serve(ctx), context.DeadlineExceeded)

	assert.Equal(t, defaultGCInterval, NewCompactor(openTest(t, config.JournalConfig{})).interval)
}
