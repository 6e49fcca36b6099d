// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// startHub serves hub until the test ends and returns an httptest server
// attaching every upgraded connection to it.
func startHub(t *testing.T, hub *Hub) (*httptest.Server, context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- hub.Serve(ctx) }()
	waitFor(t, func() bool {
		hub.runMu.Lock()
		defer hub.runMu.Unlock()
		return hub.running != nil
	}, "hub serving")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = hub.Attach(r.Context(), conn, r.URL.Query().Get("server_id"))
	}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv, cancel, served
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	return dialPath(t, srv, "/")
}

func dialPath(t *testing.T, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	return f
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastReachesEveryClient(t *testing.T) {
	hub := NewHub()
	srv, _, _ := startHub(t, hub)

	a, b := dial(t, srv), dial(t, srv)
	waitFor(t, func() bool { return hub.ClientCount() == 2 }, "two clients")

	if !hub.Broadcast(MessageTypeSessionFinalized, map[string]string{"session_key": "k1"}) {
		t.Fatal("broadcast dropped")
	}

	for _, conn := range []*websocket.Conn{a, b} {
		f := readFrame(t, conn)
		if f.Type != MessageTypeSessionFinalized {
			t.Errorf("type = %q", f.Type)
		}
		if string(f.Data) != `{"session_key":"k1"}` {
			t.Errorf("data = %s", f.Data)
		}
	}
}

func TestHub_ServerFilter(t *testing.T) {
	hub := NewHub()
	srv, _, _ := startHub(t, hub)

	all := dial(t, srv)
	jf1 := dialPath(t, srv, "/?server_id=jf1")
	jf2 := dialPath(t, srv, "/?server_id=jf2")
	waitFor(t, func() bool { return hub.ClientCount() == 3 }, "three clients")

	hub.BroadcastForServer("jf2", MessageTypeSessionFinalized, map[string]string{"session_key": "from-jf2"})
	hub.BroadcastForServer("jf1", MessageTypeSessionFinalized, map[string]string{"session_key": "from-jf1"})

	tests := []struct {
		name string
		conn *websocket.Conn
		want []string
	}{
		{"unfiltered client sees both servers", all, []string{`{"session_key":"from-jf2"}`, `{"session_key":"from-jf1"}`}},
		{"jf1 client skips jf2", jf1, []string{`{"session_key":"from-jf1"}`}},
		{"jf2 client skips jf1", jf2, []string{`{"session_key":"from-jf2"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, want := range tt.want {
				if f := readFrame(t, tt.conn); string(f.Data) != want {
					t.Errorf("data = %s, want %s", f.Data, want)
				}
			}
		})
	}

	// A message not tied to a server reaches filtered clients too.
	hub.Broadcast(MessageTypeSessionFinalized, map[string]string{"session_key": "any"})
	if f := readFrame(t, jf1); string(f.Data) != `{"session_key":"any"}` {
		t.Errorf("data = %s", f.Data)
	}
}

func TestClient_Wants(t *testing.T) {
	tests := []struct {
		client string
		msg    string
		want   bool
	}{
		{"", "jf1", true},
		{"jf1", "jf1", true},
		{"jf1", "", true},
		{"jf1", "jf2", false},
	}
	for _, tt := range tests {
		c := &Client{serverID: tt.client}
		if got := c.wants(Message{ServerID: tt.msg}); got != tt.want {
			t.Errorf("client %q wants %q = %v, want %v", tt.client, tt.msg, got, tt.want)
		}
	}
}

func TestHub_PingPong(t *testing.T) {
	hub := NewHub()
	srv, _, _ := startHub(t, hub)
	conn := dial(t, srv)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, conn); f.Type != MessageTypePong {
		t.Errorf("type = %q, want pong", f.Type)
	}
}

func TestHub_DisconnectUnregisters(t *testing.T) {
	hub := NewHub()
	srv, _, _ := startHub(t, hub)

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client registered")

	_ = conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 }, "client unregistered")
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	srv, cancel, served := startHub(t, hub)

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.ClientCount() == 1 }, "client registered")

	cancel()
	select {
	case err := <-served:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("hub did not stop")
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("expected normal close, got %v", err)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("clients left after shutdown: %d", hub.ClientCount())
	}
}

func TestHub_AttachWithoutServe(t *testing.T) {
	hub := NewHub()
	attached := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := (&websocket.Upgrader{}).Upgrade(w, r, nil)
		if err != nil {
			attached <- err
			return
		}
		attached <- hub.Attach(r.Context(), conn, "")
	}))
	defer srv.Close()

	dial(t, srv)
	select {
	case err := <-attached:
		if !errors.Is(err, ErrHubStopped) {
			t.Errorf("Attach returned %v, want ErrHubStopped", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Attach blocked")
	}
}

func TestHub_BroadcastQueueFull(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast); i++ {
		if !hub.Broadcast(MessageTypeSessionFinalized, i) {
			t.Fatalf("broadcast %d dropped early", i)
		}
	}
	if hub.Broadcast(MessageTypeSessionFinalized, "overflow") {
		t.Error("broadcast on a full queue should be dropped")
	}
}

func TestShutdownReason(t *testing.T) {
	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	if got := shutdownReason(canceled); got != ShutdownReasonContextCanceled {
		t.Errorf("canceled: got %s", got)
	}

	expired, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	<-expired.Done()
	if got := shutdownReason(expired); got != ShutdownReasonContextDeadline {
		t.Errorf("deadline: got %s", got)
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypePong, ServerID: "jf1"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"type":"pong","data":null}` {
		t.Errorf("got %s", data)
	}
}
