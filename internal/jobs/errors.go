// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package jobs

import "errors"

var (
	// ErrUnknownJob is returned for a job name outside Names.
	ErrUnknownJob = errors.New("unknown job name")

	// ErrNoHandler is returned when a payload arrives for a job kind whose
	// handler was not configured.
	ErrNoHandler = errors.New("no handler configured")

	// ErrNotStarted is returned by Enqueue before Register.
	ErrNotStarted = errors.New("job store has no registered queues")
)
