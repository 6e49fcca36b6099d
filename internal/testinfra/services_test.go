// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

//go:build integration

package testinfra

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestContainers_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	redis, err := NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}
	defer CleanupContainer(t, ctx, redis)
	if !strings.HasPrefix(redis.URL, "redis://") {
		t.Errorf("redis URL = %q", redis.URL)
	}

	nats, err := NewNATSContainer(ctx, WithStartTimeout(90*time.Second))
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	defer CleanupContainer(t, ctx, nats)
	if !strings.HasPrefix(nats.URL, "nats://") {
		t.Errorf("nats URL = %q", nats.URL)
	}
}
