// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/testinfra"
)

func TestRedis_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testinfra.NewRedisContainer(ctx)
	require.NoError(t, err)
	defer testinfra.CleanupContainer(t, ctx, container)

	v, err := New(ctx, config.CacheConfig{RedisURL: container.URL, LRUCapacity: 1, TTL: time.Minute})
	require.NoError(t, err)
	defer func() { _ = v.Close() }()

	_, isRedis := v.(*Redis)
	require.True(t, isRedis, "a redis URL selects the redis backend")

	_, ok := v.Get(ctx, "item-1")
	assert.False(t, ok)

	vec := []float32{0.5, -0.25, 1}
	v.Set(ctx, "item-1", vec)
	got, ok := v.Get(ctx, "item-1")
	require.True(t, ok)
	assert.Equal(t, vec, got)
}
