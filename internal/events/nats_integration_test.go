// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

//go:build integration

package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/testinfra"
)

func TestPublisher_NATSContainer_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	testinfra.SkipIfNoDocker(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := testinfra.NewNATSContainer(ctx)
	require.NoError(t, err)
	defer testinfra.CleanupContainer(t, ctx, container)

	p, err := New(config.EventsConfig{NATSURL: container.URL, Topic: "mediasync.it.sessions"})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, TransportNATS, p.Transport())

	msgs, err := p.Subscribe(ctx)
	require.NoError(t, err)
	// Core NATS drops messages published before the subscription is live.
	time.Sleep(200 * time.Millisecond)

	rec := sampleRecord()
	require.NoError(t, p.PublishSession(ctx, rec))

	select {
	case msg := <-msgs:
		msg.Ack()
		ev, err := Decode(msg)
		require.NoError(t, err)
		assert.Equal(t, rec.ID, ev.Session.ID)
	case <-ctx.Done():
		t.Fatal("no event received")
	}
}
