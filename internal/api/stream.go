// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package api

import (
	"net/http"
	"strings"
	"time"

	gorilla "github.com/gorilla/websocket"

	"github.com/tomtom215/mediasync/internal/logging"
)

// SessionStream upgrades to a websocket that receives finalized sessions
// as they are persisted, limited to one server with ?server_id=.
func (h *Handler) SessionStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Stream == nil {
		NewResponseWriter(w, r).Disabled("session stream")
		return
	}

	upgrader := gorilla.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	if err := h.deps.Stream.Attach(r.Context(), conn, sanitizeLogValue(r.URL.Query().Get("server_id"))); err != nil {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("WebSocket client rejected")
	}
}

// checkOrigin accepts clients without an Origin header, which browsers
// always send, and browser origins listed in AllowedOrigins.
func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.deps.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	logging.Warn().Str("origin", sanitizeLogValue(origin)).Msg("WebSocket connection rejected from unauthorized origin")
	return false
}

// sanitizeLogValue strips control characters and bounds the length of
// client-supplied values before they are logged.
func sanitizeLogValue(s string) string {
	const maxLen = 200
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}
