// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package testinfra starts real backing services in Docker for integration
// tests, using testcontainers-go.
//
// Unit tests use miniredis and an embedded nats-server. Integration tests,
// built with -tags integration, run the same code against the real Redis
// and NATS images:
//
//	func TestRedisVectors_Integration(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    redis, err := testinfra.NewRedisContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, redis)
//
//	    v, err := cache.New(ctx, config.CacheConfig{RedisURL: redis.URL})
//	    // ...
//	}
//
// Tests are skipped when Docker is unavailable. The first run pulls the
// images.
package testinfra
