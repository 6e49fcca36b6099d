// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package websocket

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/mediasync/internal/logging"
)

// ShutdownReason identifies why the hub stopped.
type ShutdownReason string

const (
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types.
const (
	MessageTypeSessionFinalized = "session_finalized"
	MessageTypePing             = "ping"
	MessageTypePong             = "pong"
)

// ErrHubStopped is returned by Attach when the hub is not running.
var ErrHubStopped = errors.New("websocket hub is not running")

// Message is the JSON frame sent to clients. ServerID routes it to
// clients following that server and is not part of the frame.
type Message struct {
	Type     string `json:"type"`
	Data     any    `json:"data"`
	ServerID string `json:"-"`
}

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	runMu   sync.Mutex
	running chan struct{}
}

// NewHub creates a Hub. It delivers nothing until Serve runs.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// String implements fmt.Stringer for suture logs.
func (h *Hub) String() string { return "websocket-hub" }

// Serve runs the hub until ctx ends, then closes every client.
//
// Lifecycle events take priority over broadcasts so a client registered
// before a broadcast always receives it.
func (h *Hub) Serve(ctx context.Context) error {
	done := make(chan struct{})
	h.runMu.Lock()
	h.running = done
	h.runMu.Unlock()
	defer func() {
		h.runMu.Lock()
		h.running = nil
		h.runMu.Unlock()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.shutdown(ctx)
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case msg := <-h.broadcast:
			h.broadcastToClients(msg)
		}
	}
}

// Attach registers conn as a client following serverID ("" for every
// server) and starts its pumps. It fails when the hub is not serving or
// ctx ends first; conn is closed in both cases.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn, serverID string) error {
	h.runMu.Lock()
	done := h.running
	h.runMu.Unlock()
	if done == nil {
		_ = conn.Close()
		return ErrHubStopped
	}

	c := newClient(h, conn, done, serverID)
	select {
	case h.register <- c:
		c.start()
		return nil
	case <-done:
		_ = conn.Close()
		return ErrHubStopped
	case <-ctx.Done():
		_ = conn.Close()
		return ctx.Err()
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Info().Uint64("client_id", c.id).Str("server_id", c.serverID).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	logging.Info().Uint64("client_id", c.id).Int("total_clients", n).Msg("websocket client disconnected")
}

// sortedClients returns the clients in id order. Callers hold mu.
func (h *Hub) sortedClients() []*Client {
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })
	return clients
}

// broadcastToClients delivers msg to every client that wants it, dropping
// those whose send buffer is full.
func (h *Hub) broadcastToClients(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sortedClients() {
		if !c.wants(msg) {
			continue
		}
		select {
		case c.send <- msg:
		default:
			logging.Warn().Uint64("client_id", c.id).Msg("websocket client too slow, disconnecting")
			close(c.send)
			delete(h.clients, c)
		}
	}
}

func (h *Hub) shutdown(ctx context.Context) {
	h.mu.Lock()
	clients := h.sortedClients()
	for _, c := range clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()

	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(shutdownReason(ctx))).
		Int("clients_closed", len(clients)).
		Msg("websocket hub stopped")
}

func shutdownReason(ctx context.Context) ShutdownReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// Broadcast queues a message for every client. It never blocks: when the
// queue is full the message is dropped and false is returned.
func (h *Hub) Broadcast(messageType string, data any) bool {
	return h.BroadcastForServer("", messageType, data)
}

// BroadcastForServer is Broadcast for a message produced by one media
// server; clients following a different server skip it.
func (h *Hub) BroadcastForServer(serverID, messageType string, data any) bool {
	select {
	case h.broadcast <- Message{Type: messageType, Data: data, ServerID: serverID}:
		return true
	default:
		logging.Warn().Str("message_type", messageType).Str("server_id", serverID).Msg("broadcast channel full, dropping message")
		return false
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// MarshalMessage encodes msg as sent on the wire.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
