// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

type mockComponent struct {
	starts     atomic.Int32
	stops      atomic.Int32
	failUntil  int32
	startError error
}

func (m *mockComponent) Start(ctx context.Context) error {
	n := m.starts.Add(1)
	if m.startError != nil {
		return m.startError
	}
	if n <= m.failUntil {
		return errors.New("simulated start failure")
	}
	return nil
}

func (m *mockComponent) Stop() {
	m.stops.Add(1)
}

type mockQueue struct {
	started  atomic.Bool
	startCtx context.Context
	stopped  chan context.Context
	drained  bool
}

func (q *mockQueue) Start(ctx context.Context) {
	q.startCtx = ctx
	q.started.Store(true)
}

func (q *mockQueue) Stop(ctx context.Context) bool {
	q.stopped <- ctx
	return q.drained
}

var (
	_ suture.Service = (*LifecycleService)(nil)
	_ suture.Service = (*JobQueueService)(nil)
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLifecycleService_StartsAndStops(t *testing.T) {
	comp := &mockComponent{}
	svc := NewLifecycleService("scheduler", comp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	waitFor(t, func() bool { return comp.starts.Load() == 1 })
	if comp.stops.Load() != 0 {
		t.Error("component stopped before cancellation")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("service did not stop in time")
	}
	if comp.stops.Load() != 1 {
		t.Errorf("expected one Stop, got %d", comp.stops.Load())
	}
}

func TestLifecycleService_StartErrorIsReturned(t *testing.T) {
	startErr := errors.New("no servers configured")
	comp := &mockComponent{startError: startErr}
	svc := NewLifecycleService("session-poller", comp)

	err := svc.Serve(context.Background())
	if !errors.Is(err, startErr) {
		t.Fatalf("expected wrapped start error, got %v", err)
	}
	if comp.stops.Load() != 0 {
		t.Error("Stop must not run after a failed Start")
	}
	if svc.String() != "session-poller" {
		t.Errorf("expected name session-poller, got %q", svc.String())
	}
}

func TestLifecycleService_RestartedBySupervisor(t *testing.T) {
	comp := &mockComponent{failUntil: 2}
	sup := suture.New("processing-test", suture.Spec{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		Timeout:          100 * time.Millisecond,
	})
	sup.Add(NewLifecycleService("scheduler", comp))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := sup.ServeBackground(ctx)

	waitFor(t, func() bool { return comp.starts.Load() >= 3 })
	cancel()
	<-errCh

	if comp.stops.Load() != 1 {
		t.Errorf("only the successful start should be stopped, got %d stops", comp.stops.Load())
	}
}

func TestJobQueueService_DrainsOnShutdown(t *testing.T) {
	q := &mockQueue{stopped: make(chan context.Context, 1), drained: true}
	svc := NewJobQueueService(q, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	waitFor(t, q.started.Load)
	cancel()

	select {
	case drainCtx := <-q.stopped:
		if drainCtx.Err() != nil {
			t.Error("drain context must outlive the service context")
		}
		if _, ok := drainCtx.Deadline(); !ok {
			t.Error("drain context should carry the drain timeout")
		}
	case <-time.After(time.Second):
		t.Fatal("queue was not stopped")
	}
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if q.startCtx.Err() != nil {
		t.Error("workers context must not be canceled with the service context")
	}
}

func TestNewJobQueueService_DefaultTimeout(t *testing.T) {
	svc := NewJobQueueService(&mockQueue{}, 0)
	if svc.drainTimeout != 10*time.Second {
		t.Errorf("expected default 10s, got %v", svc.drainTimeout)
	}
	if svc.String() != "job-queue" {
		t.Errorf("expected job-queue, got %q", svc.String())
	}
}
