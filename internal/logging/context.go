// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	jobIDKey         contextKey = "job_id"
	jobNameKey       contextKey = "job_name"
	serverIDKey      contextKey = "server_id"
)

// GenerateCorrelationID returns a short random id for log correlation.
func GenerateCorrelationID() string {
	return uuid.New().String()[:8]
}

// ContextWithCorrelationID returns a context carrying the given correlation id.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// ContextWithNewCorrelationID returns a context with a freshly generated correlation id.
func ContextWithNewCorrelationID(ctx context.Context) context.Context {
	return ContextWithCorrelationID(ctx, GenerateCorrelationID())
}

// CorrelationIDFromContext returns the correlation id or "".
func CorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// ContextWithJob tags the context with the job being executed. Every
// logger obtained through Ctx carries job_id and job_name afterwards.
func ContextWithJob(ctx context.Context, jobID, jobName string) context.Context {
	ctx = context.WithValue(ctx, jobIDKey, jobID)
	return context.WithValue(ctx, jobNameKey, jobName)
}

// JobFromContext returns the job id and name stored by ContextWithJob.
func JobFromContext(ctx context.Context) (id, name string) {
	id, _ = ctx.Value(jobIDKey).(string)
	name, _ = ctx.Value(jobNameKey).(string)
	return id, name
}

// ContextWithServer tags the context with a media server id.
func ContextWithServer(ctx context.Context, serverID string) context.Context {
	return context.WithValue(ctx, serverIDKey, serverID)
}

// Ctx returns the global logger enriched with whatever identifiers the
// context carries.
//
//	logging.Ctx(ctx).Info().Msg("Processing page")
func Ctx(ctx context.Context) *zerolog.Logger {
	lc := Logger().With()
	if v := CorrelationIDFromContext(ctx); v != "" {
		lc = lc.Str("correlation_id", v)
	}
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		lc = lc.Str("job_id", v)
	}
	if v, ok := ctx.Value(jobNameKey).(string); ok && v != "" {
		lc = lc.Str("job_name", v)
	}
	if v, ok := ctx.Value(serverIDKey).(string); ok && v != "" {
		lc = lc.Str("server_id", v)
	}
	l := lc.Logger()
	return &l
}

// WithComponent creates a child logger with a component field.
//
//	pollerLog := logging.WithComponent("session-poller")
func WithComponent(component string) zerolog.Logger {
	return Logger().With().Str("component", component).Logger()
}
