// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package logging holds the one zerolog logger every MediaSync component
// writes to.
//
// cmd/server calls Init once with the logging section of the config.
// Before that, output goes to stderr as JSON at info level, so config
// loading errors are still visible.
//
//	logging.Info().Str("server_id", id).Msg("Sync started")
//	logging.Ctx(ctx).Error().Err(err).Msg("Job failed")
//
// Ctx adds the correlation, job and server ids carried by the context.
// The suture tree, the backlite queue and the Watermill publisher get
// adapters from this package (slog, backlite.Logger, LoggerAdapter) so
// that their lines share the same fields and level.
//
// Events are only written by Msg or Send.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ServiceName is the value of the service field on every line.
const ServiceName = "mediasync"

// Config mirrors the logging section of config.yaml.
type Config struct {
	Level     string // trace, debug, info, warn, error; anything else is info
	Format    string // json, or console for local runs
	Caller    bool
	Timestamp bool
	Output    io.Writer // nil means stderr
}

// DefaultConfig is what applies until Init runs.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Timestamp: true, Output: os.Stderr}
}

var (
	mu     sync.RWMutex
	global = build(DefaultConfig())
)

// Init replaces the global logger. Calling it again reconfigures.
func Init(cfg Config) {
	l := build(cfg)
	mu.Lock()
	global = l
	mu.Unlock()
}

func build(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.TimestampFieldName = "time"
	zerolog.MessageFieldName = "message"

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	lc := zerolog.New(out).With().Str("service", ServiceName)
	if cfg.Timestamp {
		lc = lc.Timestamp()
	}
	if cfg.Caller {
		lc = lc.Caller()
	}
	return lc.Logger()
}

// parseLevel accepts the zerolog level names plus "warning". Unknown or
// empty values fall back to info rather than failing startup.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// Logger returns a copy of the global logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// SetLogger swaps the global logger; tests use it to capture output.
//
//nolint:gocritic // zerolog.Logger is passed by value by design of zerolog
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	global = l
	mu.Unlock()
}

// SetLevelString changes the global level, for example after a config
// reload.
func SetLevelString(level string) {
	zerolog.SetGlobalLevel(parseLevel(level))
}

func Debug() *zerolog.Event { l := Logger(); return l.Debug() }
func Info() *zerolog.Event { l := Logger(); return l.Info() }
func Warn() *zerolog.Event { l := Logger(); return l.Warn() }
func Error() *zerolog.Event { l := Logger(); return l.Error() }

// Fatal logs and exits with status 1. Only cmd/server calls it.
func Fatal() *zerolog.Event { l := Logger(); return l.Fatal() }

// Err starts an error event carrying err, or an info event when err is nil.
func Err(err error) *zerolog.Event { l := Logger(); return l.Err(err) }

// NewTestLogger writes JSON lines without the service field to w.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
