// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package cache holds embedding vectors keyed by model and input, either
// in Redis or in an in-process LRU.
package cache

import (
	"context"
	"time"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
)

// Vectors is a vector cache. Lookups never fail: a backend error is a miss.
type Vectors interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vec []float32)
	Close() error
}

// New returns a Redis cache when cfg.RedisURL is set and an LRU otherwise.
func New(ctx context.Context, cfg config.CacheConfig) (Vectors, error) {
	if cfg.RedisURL != "" {
		return NewRedis(ctx, cfg.RedisURL, cfg.TTL)
	}
	logging.Info().Int("capacity", cfg.LRUCapacity).Dur("ttl", cfg.TTL).Msg("Using in-process vector cache")
	return NewLRUVectors(cfg.LRUCapacity, cfg.TTL), nil
}

// LRUVectors keeps vectors in process memory.
type LRUVectors struct {
	lru *LRU[[]float32]
}

// NewLRUVectors creates an LRUVectors.
func NewLRUVectors(capacity int, ttl time.Duration) *LRUVectors {
	return &LRUVectors{lru: NewLRU[[]float32](capacity, ttl)}
}

func (c *LRUVectors) Get(_ context.Context, key string) ([]float32, bool) {
	v, ok := c.lru.Get(key)
	metrics.RecordCacheLookup("lru", ok)
	return v, ok
}

func (c *LRUVectors) Set(_ context.Context, key string, vec []float32) {
	c.lru.Set(key, vec)
}

func (c *LRUVectors) Close() error { return nil }
