// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth marks a 401/403 from the media server. It is fatal for the job.
	ErrAuth = errors.New("media server rejected credentials")

	// ErrAlreadySyncing is returned when another sync holds the server lock.
	ErrAlreadySyncing = errors.New("server is already syncing")

	// ErrRateLimited is returned when 429 responses outlast the retry budget.
	ErrRateLimited = errors.New("media server rate limit exceeded")
)

// APIError is a non-2xx response from the media server.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Is makes errors.Is(err, ErrAuth) true for 401 and 403.
func (e *APIError) Is(target error) bool {
	return target == ErrAuth &&
		(e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden)
}

// Transient reports whether a retry may succeed.
func (e *APIError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// PageFetchError ends an entity module early.
type PageFetchError struct {
	Entity     string
	StartIndex int
	Err        error
}

func (e *PageFetchError) Error() string {
	return fmt.Sprintf("%s: fetch page at %d: %v", e.Entity, e.StartIndex, e.Err)
}

func (e *PageFetchError) Unwrap() error { return e.Err }

// RecordError is one record that failed to map or upsert.
type RecordError struct {
	ExternalID string
	Err        error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %s: %v", e.ExternalID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
