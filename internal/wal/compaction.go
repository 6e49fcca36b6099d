// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package wal

import (
	"context"
	"time"

	"github.com/tomtom215/mediasync/internal/logging"
)

const defaultGCInterval = 10 * time.Minute

// Compactor reclaims journal space on an interval. It implements
// suture.Service.
type Compactor struct {
	journal  *Journal
	interval time.Duration
}

// NewCompactor creates a Compactor using the journal's gc_interval.
func NewCompactor(j *Journal) *Compactor {
	interval := j.gcEvery
	if interval <= 0 {
		interval = defaultGCInterval
	}
	return &Compactor{journal: j, interval: interval}
}

// String implements fmt.Stringer for suture logs.
func (c *Compactor) String() string { return "session-journal-gc" }

// Serve runs GC every interval until ctx ends.
func (c *Compactor) Serve(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logging.Info().Dur("interval", c.interval).Msg("Session journal compactor started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := c.journal.RunGC(); err != nil {
				logging.Error().Err(err).Msg("Session journal compaction failed")
			}
		}
	}
}
