// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package testinfra

import (
	"context"

	"github.com/testcontainers/testcontainers-go"
)

const (
	DefaultRedisImage = "redis:7-alpine"
	DefaultNATSImage  = "nats:2.10-alpine"
)

// RedisContainer is a running Redis server.
type RedisContainer struct {
	testcontainers.Container
	// URL is a redis:// URL accepted by cache.New.
	URL string
}

// NewRedisContainer starts Redis with persistence disabled.
func NewRedisContainer(ctx context.Context, opts ...Option) (*RedisContainer, error) {
	c, url, err := start(ctx, service{
		name:     "redis",
		image:    DefaultRedisImage,
		port:     "6379",
		scheme:   "redis",
		readyLog: "Ready to accept connections",
		cmd:      []string{"redis-server", "--save", "", "--appendonly", "no"},
	}, opts)
	if err != nil {
		return nil, err
	}
	return &RedisContainer{Container: c, URL: url}, nil
}

// NATSContainer is a running core NATS server.
type NATSContainer struct {
	testcontainers.Container
	// URL is a nats:// URL accepted by events.New.
	URL string
}

// NewNATSContainer starts a NATS server without JetStream.
func NewNATSContainer(ctx context.Context, opts ...Option) (*NATSContainer, error) {
	c, url, err := start(ctx, service{
		name:     "nats",
		image:    DefaultNATSImage,
		port:     "4222",
		scheme:   "nats",
		readyLog: "Server is ready",
	}, opts)
	if err != nil {
		return nil, err
	}
	return &NATSContainer{Container: c, URL: url}, nil
}
