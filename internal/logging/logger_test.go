// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

func captureGlobal(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	SetLogger(NewTestLogger(&buf))
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	return &buf
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" {
		t.Errorf("expected default level 'info', got %q", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("expected default format 'json', got %q", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamps enabled by default")
	}
}

func TestInit_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	prev := Logger()
	defer SetLogger(prev)

	Init(Config{Level: "debug", Format: "json", Output: &buf})
	Info().Msg("hello")

	out := buf.String()
	if !strings.Contains(out, `"message":"hello"`) {
		t.Errorf("missing message in %s", out)
	}
	if !strings.Contains(out, `"level":"info"`) {
		t.Errorf("missing level in %s", out)
	}
	if !strings.Contains(out, `"service":"mediasync"`) {
		t.Errorf("missing service field in %s", out)
	}
	SetLevelString("info")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"DEBUG":    zerolog.DebugLevel,
		"info":     zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		" Warn ":   zerolog.WarnLevel,
		"disabled": zerolog.Disabled,
		"error":    zerolog.ErrorLevel,
		"bogus":    zerolog.InfoLevel,
		"":         zerolog.InfoLevel,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestCtx_AddsJobFields(t *testing.T) {
	buf := captureGlobal(t)

	ctx := ContextWithJob(context.Background(), "job-1", "users-sync")
	ctx = ContextWithServer(ctx, "srv-a")
	ctx = ContextWithCorrelationID(ctx, "corr1234")
	Ctx(ctx).Info().Msg("working")

	out := buf.String()
	for _, want := range []string{`"job_id":"job-1"`, `"job_name":"users-sync"`, `"server_id":"srv-a"`, `"correlation_id":"corr1234"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}

	id, name := JobFromContext(ctx)
	if id != "job-1" || name != "users-sync" {
		t.Errorf("JobFromContext = %q, %q", id, name)
	}
}

func TestSlogHandler_GroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &SlogHandler{logger: NewTestLogger(&buf)}
	logger := slog.New(h).With("service", "poller").WithGroup("suture")
	logger.Warn("service restarted", "attempt", 3)

	out := buf.String()
	if !strings.Contains(out, `"service":"poller"`) {
		t.Errorf("missing attr in %s", out)
	}
	if !strings.Contains(out, `"suture.attempt":3`) {
		t.Errorf("missing grouped attr in %s", out)
	}
	if !strings.Contains(out, `"level":"warn"`) {
		t.Errorf("missing level in %s", out)
	}
}

func TestBackliteLogger_Params(t *testing.T) {
	buf := captureGlobal(t)

	l := NewBackliteLogger()
	l.Error("task failed", "queue", "users-sync", "error", errors.New("boom"))

	out := buf.String()
	if !strings.Contains(out, `"queue":"users-sync"`) {
		t.Errorf("missing queue field in %s", out)
	}
	if !strings.Contains(out, `"error":"boom"`) {
		t.Errorf("missing error field in %s", out)
	}
	if !strings.Contains(out, `"component":"jobs"`) {
		t.Errorf("missing component in %s", out)
	}
}

func TestWatermillLogger_With(t *testing.T) {
	buf := captureGlobal(t)

	l := NewWatermillLogger().With(watermill.LogFields{"topic": "sessions.finalized"})
	l.Info("published", watermill.LogFields{"uuid": "abc"})

	out := buf.String()
	if !strings.Contains(out, `"topic":"sessions.finalized"`) || !strings.Contains(out, `"uuid":"abc"`) {
		t.Errorf("missing fields in %s", out)
	}
}
