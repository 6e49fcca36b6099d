// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package events

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/models"
)

func sampleRecord() *models.SessionRecord {
	start := time.Date(2025, 3, 1, 20, 0, 0, 0, time.UTC)
	return &models.SessionRecord{
		ID:                  "0b7e4d1c-0000-4000-8000-000000000001",
		ServerID:            "jf1",
		SessionKey:          "5:alice|4:tv-1|0:|6:ep-101",
		UserID:              "alice",
		ItemID:              "ep-101",
		DeviceID:            "tv-1",
		StartTime:           start,
		EndTime:             start.Add(42 * time.Minute),
		PlayDurationSeconds: 2520,
		PositionTicks:       25_200_000_000,
		RuntimeTicks:        27_000_000_000,
		PercentComplete:     93.33,
		Completed:           true,
	}
}

func TestPublisher_GoChannel(t *testing.T) {
	p, err := New(config.EventsConfig{})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, TransportChannel, p.Transport())
	assert.Equal(t, DefaultTopic, p.Topic())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := p.Subscribe(ctx)
	require.NoError(t, err)

	rec := sampleRecord()
	require.NoError(t, p.PublishSession(ctx, rec))

	var msg *message.Message
	select {
	case msg = <-msgs:
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	assert.Equal(t, rec.ID, msg.UUID)
	assert.Equal(t, "jf1", msg.Metadata.Get("server_id"))
	assert.Equal(t, "true", msg.Metadata.Get("completed"))

	ev, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, TypeSessionFinalized, ev.Type)
	assert.Equal(t, rec.EndTime, ev.OccurredAt)
	assert.Equal(t, rec, ev.Session)
}

func TestPublisher_Closed(t *testing.T) {
	p, err := New(config.EventsConfig{Topic: "custom.topic"})
	require.NoError(t, err)
	assert.Equal(t, "custom.topic", p.Topic())

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.ErrorIs(t, p.PublishSession(context.Background(), sampleRecord()), ErrClosed)
	_, err = p.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func runNATS(t *testing.T) *server.Server {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: server.RANDOM_PORT, NoLog: true, NoSigs: true})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(ns.Shutdown)
	return ns
}

func TestPublisher_NATS(t *testing.T) {
	ns := runNATS(t)

	nc, err := natsgo.Connect(ns.ClientURL())
	require.NoError(t, err)
	defer nc.Close()
	sub, err := nc.SubscribeSync(DefaultTopic)
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	p, err := New(config.EventsConfig{NATSURL: ns.ClientURL(), Topic: DefaultTopic})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	assert.Equal(t, TransportNATS, p.Transport())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	msgs, err := p.Subscribe(ctx)
	require.NoError(t, err)
	// The watermill subscription lives on its own connection.
	time.Sleep(200 * time.Millisecond)

	rec := sampleRecord()
	require.NoError(t, p.PublishSession(context.Background(), rec))

	select {
	case msg := <-msgs:
		msg.Ack()
		assert.Equal(t, rec.ID, msg.UUID)
		assert.Equal(t, "jf1", msg.Metadata.Get("server_id"))
	case <-time.After(5 * time.Second):
		t.Fatal("no event received through Subscribe")
	}

	got, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "jf1", got.Header.Get("server_id"))

	var ev SessionFinalized
	require.NoError(t, json.Unmarshal(got.Data, &ev))
	assert.Equal(t, rec.ID, ev.EventID)
	assert.Equal(t, rec.SessionKey, ev.Session.SessionKey)
	assert.True(t, ev.Session.Completed)
}
