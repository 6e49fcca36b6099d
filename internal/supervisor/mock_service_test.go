// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package supervisor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

// fakeService stands in for a job queue, poller or server. The first
// failures runs of Serve return an error; later runs block until ctx ends.
type fakeService struct {
	name     string
	failures int32
	runs     atomic.Int32
	exits    atomic.Int32
	started  chan struct{}
}

func newFakeService(name string, failures int) *fakeService {
	return &fakeService{name: name, failures: int32(failures), started: make(chan struct{}, 16)}
}

func (f *fakeService) Serve(ctx context.Context) error {
	run := f.runs.Add(1)
	defer f.exits.Add(1)
	select {
	case f.started <- struct{}{}:
	default:
	}

	if run <= f.failures {
		return fmt.Errorf("%s: run %d failed", f.name, run)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeService) String() string { return f.name }

// waitRuns polls until the service has been started at least n times.
func (f *fakeService) waitRuns(n int32, within time.Duration) bool {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if f.runs.Load() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return f.runs.Load() >= n
}
