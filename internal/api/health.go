// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/goccy/go-json"
)

const healthCheckTimeout = 3 * time.Second

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// Health runs every registered check. Any failure turns the response
// into a 503.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.deps.Health))
	for name := range h.deps.Health {
		names = append(names, name)
	}
	sort.Strings(names)

	st := HealthStatus{Status: "ok", Components: make(map[string]string, len(names)), CheckedAt: h.now().UTC()}
	for _, name := range names {
		if err := h.deps.Health[name](ctx); err != nil {
			st.Status = "degraded"
			st.Components[name] = err.Error()
			continue
		}
		st.Components[name] = "ok"
	}

	code := http.StatusOK
	if st.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(st)
}
