// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package websocket

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/tomtom215/mediasync/internal/events"
	"github.com/tomtom215/mediasync/internal/logging"
)

// ErrStreamClosed is returned by Bridge.Serve when the event stream ends
// before ctx, so the supervisor resubscribes.
var ErrStreamClosed = errors.New("session event stream closed")

// EventSource is satisfied by *events.Publisher.
type EventSource interface {
	Subscribe(ctx context.Context) (<-chan *message.Message, error)
}

// Bridge forwards finalized session events to a Hub.
type Bridge struct {
	source EventSource
	hub    *Hub
}

// NewBridge creates a Bridge from source to hub.
func NewBridge(source EventSource, hub *Hub) *Bridge {
	return &Bridge{source: source, hub: hub}
}

// String implements fmt.Stringer for suture logs.
func (b *Bridge) String() string { return "session-stream-bridge" }

// Serve subscribes and forwards events until ctx ends. Every message is
// acked, including ones that fail to decode.
func (b *Bridge) Serve(ctx context.Context) error {
	msgs, err := b.source.Subscribe(ctx)
	if err != nil {
		return err
	}
	logging.Info().Msg("Session stream bridge subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrStreamClosed
			}
			b.forward(msg)
			msg.Ack()
		}
	}
}

func (b *Bridge) forward(msg *message.Message) {
	ev, err := events.Decode(msg)
	if err != nil {
		logging.Warn().Err(err).Msg("Dropping undecodable session event")
		return
	}
	serverID := msg.Metadata.Get("server_id")
	if ev.Session != nil {
		serverID = ev.Session.ServerID
	}
	b.hub.BroadcastForServer(serverID, MessageTypeSessionFinalized, ev)
}
