// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package services

import (
	"context"
	"fmt"
	"time"
)

// StartStopper is the lifecycle of the scheduler and the session poller.
// Start returns once background work is running; Stop blocks until it
// has finished.
type StartStopper interface {
	Start(ctx context.Context) error
	Stop()
}

// LifecycleService adapts a StartStopper to suture.Service.
type LifecycleService struct {
	component StartStopper
	name      string
}

// NewLifecycleService wraps component under the given service name.
func NewLifecycleService(name string, component StartStopper) *LifecycleService {
	return &LifecycleService{component: component, name: name}
}

// Serve starts the component, waits for ctx and stops it. A failed Start
// is returned so suture restarts the service with backoff.
func (s *LifecycleService) Serve(ctx context.Context) error {
	if err := s.component.Start(ctx); err != nil {
		return fmt.Errorf("%s start failed: %w", s.name, err)
	}

	<-ctx.Done()
	s.component.Stop()
	return ctx.Err()
}

func (s *LifecycleService) String() string {
	return s.name
}

// JobQueue is the lifecycle of the backlite job store.
type JobQueue interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) bool
}

// JobQueueService runs the job queue workers. On shutdown it waits up to
// drainTimeout for in-flight jobs; the store logs whether they finished.
type JobQueueService struct {
	queue        JobQueue
	drainTimeout time.Duration
}

// NewJobQueueService wraps queue. A non-positive timeout means 10s.
func NewJobQueueService(queue JobQueue, drainTimeout time.Duration) *JobQueueService {
	if drainTimeout <= 0 {
		drainTimeout = defaultShutdownTimeout
	}
	return &JobQueueService{queue: queue, drainTimeout: drainTimeout}
}

// Serve implements suture.Service.
func (s *JobQueueService) Serve(ctx context.Context) error {
	// Workers outlive ctx until Stop drains them.
	s.queue.Start(context.WithoutCancel(ctx))

	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()
	s.queue.Stop(drainCtx)
	return ctx.Err()
}

func (s *JobQueueService) String() string {
	return "job-queue"
}
