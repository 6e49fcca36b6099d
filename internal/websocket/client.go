// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/mediasync/internal/logging"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// clientIDCounter orders clients so every session is fanned out to them
// in the same sequence.
var clientIDCounter atomic.Uint64

// Client is one admin connection following the finalized-session feed.
// A client attached with a server ID sees only that server's sessions.
type Client struct {
	id       uint64
	serverID string
	hub      *Hub
	hubDone  <-chan struct{}
	conn     *websocket.Conn
	send     chan Message

	// pong is separate from send, which only the hub closes.
	pong chan struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, hubDone <-chan struct{}, serverID string) *Client {
	return &Client{
		id:       clientIDCounter.Add(1),
		serverID: serverID,
		hub:      hub,
		hubDone:  hubDone,
		conn:     conn,
		send:     make(chan Message, sendBuffer),
		pong:     make(chan struct{}, 1),
	}
}

func (c *Client) ID() uint64 {
	return c.id
}

// ServerID returns the media server this client follows, or "" for all.
func (c *Client) ServerID() string {
	return c.serverID
}

// wants reports whether msg belongs on this client's feed. Messages not
// tied to a server go to everyone.
func (c *Client) wants(msg Message) bool {
	return c.serverID == "" || msg.ServerID == "" || msg.ServerID == c.serverID
}

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}

// readPump keeps the read deadline alive and answers {"type":"ping"}. The
// feed is one-way, so any other frame is discarded.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hubDone:
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Warn().Err(err).Uint64("client_id", c.id).Str("server_id", c.serverID).Msg("session stream client dropped")
			}
			return
		}

		var msg Message
		if json.Unmarshal(data, &msg) != nil || msg.Type != MessageTypePing {
			continue
		}
		select {
		case c.pong <- struct{}{}:
		default:
		}
	}
}

// writePump sends queued sessions, pong replies and keepalive pings until
// the hub closes send or the peer stops reading.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.write(msg); err != nil {
				return
			}

		case <-c.pong:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.write(Message{Type: MessageTypePong}); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msg Message) error {
	data, err := MarshalMessage(msg)
	if err != nil {
		// One unencodable session must not cut the feed.
		logging.Error().Err(err).Str("message_type", msg.Type).Str("server_id", msg.ServerID).Msg("Skipping session stream frame")
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
