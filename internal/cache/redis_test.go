// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediasync/internal/config"
)

func setupMiniRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedis(context.Background(), "redis://"+mr.Addr()+"/0", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func TestRedis_SetGet(t *testing.T) {
	mr, c := setupMiniRedis(t)
	ctx := context.Background()

	_, ok := c.Get(ctx, "abc")
	assert.False(t, ok)

	c.Set(ctx, "abc", []float32{0.25, -1, 3.5})
	v, ok := c.Get(ctx, "abc")
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, -1, 3.5}, v)

	assert.True(t, mr.Exists("mediasync:vec:abc"))
	assert.Equal(t, time.Hour, mr.TTL("mediasync:vec:abc"))

	mr.FastForward(2 * time.Hour)
	_, ok = c.Get(ctx, "abc")
	assert.False(t, ok, "entries expire with the configured ttl")
}

func TestRedis_CorruptEntryIsMiss(t *testing.T) {
	mr, c := setupMiniRedis(t)
	require.NoError(t, mr.Set("mediasync:vec:bad", "not-json"))
	_, ok := c.Get(context.Background(), "bad")
	assert.False(t, ok)
}

func TestRedis_UnavailableServerIsMiss(t *testing.T) {
	mr, c := setupMiniRedis(t)
	mr.Close()

	ctx := context.Background()
	c.Set(ctx, "k", []float32{1})
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Error(t, c.Ping(ctx))
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	v, err := New(ctx, config.CacheConfig{LRUCapacity: 10, TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &LRUVectors{}, v)

	mr := miniredis.RunT(t)
	v, err = New(ctx, config.CacheConfig{RedisURL: "redis://" + mr.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	assert.IsType(t, &Redis{}, v)
	require.NoError(t, v.Close())

	_, err = New(ctx, config.CacheConfig{RedisURL: "http://nope"})
	assert.Error(t, err)
}
