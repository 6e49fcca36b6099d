// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
Package websocket streams finalized playback sessions to admin clients.

A Hub owns the connected clients and fans every broadcast out to them.
A Bridge reads the session event stream published by internal/events and
hands each event to the hub, so clients see a session as soon as the
poller persists it, whichever event transport is configured.

	events.Publisher ──Subscribe──▶ Bridge ──▶ Hub ──▶ Client 1..n

Each client runs two goroutines: readPump answers {"type":"ping"} with a
pong and detects dead peers through pong deadlines; writePump drains the
client's send buffer and pings the peer every pingPeriod. A client whose
buffer is full when a broadcast arrives is dropped. A client attached
with a server ID receives only sessions from that server.

Messages are JSON objects with a type and a data field:

	{"type":"session_finalized","data":{"event_id":"...","session":{...}}}

Hub and Bridge both implement suture.Service and run in the supervisor
tree; the API layer attaches upgraded connections with Hub.Attach.
*/
package websocket
