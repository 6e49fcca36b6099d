// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewSupervisorTree_Defaults(t *testing.T) {
	tree, err := NewSupervisorTree(quietLogger(), TreeConfig{})
	if err != nil {
		t.Fatalf("failed to create tree: %v", err)
	}
	if tree.Root() == nil {
		t.Fatal("root supervisor should not be nil")
	}
	if tree.config != DefaultTreeConfig() {
		t.Errorf("expected defaults %+v, got %+v", DefaultTreeConfig(), tree.config)
	}
}

func TestNewSupervisorTree_KeepsExplicitValues(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{FailureThreshold: 2, ShutdownTimeout: time.Second})
	if tree.config.FailureThreshold != 2 {
		t.Errorf("expected FailureThreshold 2, got %f", tree.config.FailureThreshold)
	}
	if tree.config.ShutdownTimeout != time.Second {
		t.Errorf("expected ShutdownTimeout 1s, got %v", tree.config.ShutdownTimeout)
	}
	if tree.config.FailureDecay != 30.0 {
		t.Errorf("expected default FailureDecay, got %f", tree.config.FailureDecay)
	}
}

func TestSupervisorTree_StartsEveryLayer(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	data := newFakeService("job-queue", 0)
	processing := newFakeService("scheduler", 0)
	api := newFakeService("admin-api", 0)
	tree.AddDataService(data)
	tree.AddProcessingService(processing)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	for _, svc := range []*fakeService{data, processing, api} {
		if !svc.waitRuns(1, 2*time.Second) {
			t.Errorf("%s was not started", svc)
		}
	}
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tree did not shut down in time")
	}

	for _, svc := range []*fakeService{data, processing, api} {
		if runs, exits := svc.runs.Load(), svc.exits.Load(); runs != exits {
			t.Errorf("%s: %d runs but %d exits", svc, runs, exits)
		}
	}
}

func TestSupervisorTree_RestartsFailingProcessingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{
		FailureThreshold: 10,
		FailureBackoff:   10 * time.Millisecond,
		ShutdownTimeout:  time.Second,
	})

	poller := newFakeService("session-poller", 2)
	api := newFakeService("admin-api", 0)
	tree.AddProcessingService(poller)
	tree.AddAPIService(api)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	go func() { _ = tree.Serve(ctx) }()
	time.Sleep(200 * time.Millisecond)

	if got := poller.runs.Load(); got < 3 {
		t.Errorf("expected at least 3 runs of the failing poller, got %d", got)
	}
	if got := api.runs.Load(); got != 1 {
		t.Errorf("api service should start once, got %d", got)
	}
}

func TestSupervisorTree_RemoveProcessingService(t *testing.T) {
	tree, _ := NewSupervisorTree(quietLogger(), TreeConfig{ShutdownTimeout: time.Second})

	svc := newFakeService("scheduler", 0)
	token := tree.AddProcessingService(svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tree.ServeBackground(ctx)

	select {
	case <-svc.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler was not started")
	}
	if err := tree.RemoveProcessingService(token); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for svc.exits.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := svc.exits.Load(); got != 1 {
		t.Errorf("expected service to stop once, got %d", got)
	}
}
