// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tomtom215/mediasync/internal/logging"
)

const (
	adminAPIServiceName    = "admin-api"
	defaultShutdownTimeout = 10 * time.Second
)

// HTTPServer is the part of *http.Server the admin API service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService keeps the admin API (sync triggers, job results, the
// session stream) listening under the API layer of the supervisor tree.
// On cancellation it stops accepting requests and waits up to
// shutdownTimeout for in-flight ones, so a trigger that already enqueued
// its job still gets its 202.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPServerService wraps server. A non-positive timeout means 10s.
func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. A listener failure is returned so the
// supervisor restarts the service; cancellation returns ctx.Err().
func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	addr := ""
	if srv, ok := h.server.(*http.Server); ok {
		addr = srv.Addr
	}
	logging.Info().Str("addr", addr).Msg("Admin API listening")

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("admin API listener on %q: %w", addr, err)
		}
		return nil

	case <-ctx.Done():
		// ctx is already canceled; drain on a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		started := time.Now()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin API drain after %s: %w", h.shutdownTimeout, err)
		}
		<-errCh
		logging.Info().Dur("drained_in", time.Since(started)).Msg("Admin API stopped")
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string {
	return adminAPIServiceName
}
