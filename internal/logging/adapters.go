// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package logging

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
)

// BackliteLogger satisfies backlite.Logger. backlite passes key/value
// pairs after the message, so params are emitted as structured fields.
type BackliteLogger struct {
	logger zerolog.Logger
}

// NewBackliteLogger returns a backlite logger tagged with component=jobs.
func NewBackliteLogger() *BackliteLogger {
	return &BackliteLogger{logger: WithComponent("jobs")}
}

// Info implements backlite.Logger.
func (l *BackliteLogger) Info(message string, params ...any) {
	withParams(l.logger.Debug(), params).Msg(message)
}

// Error implements backlite.Logger.
func (l *BackliteLogger) Error(message string, params ...any) {
	withParams(l.logger.Error(), params).Msg(message)
}

func withParams(event *zerolog.Event, params []any) *zerolog.Event {
	for i := 0; i < len(params); i += 2 {
		key := fmt.Sprint(params[i])
		if i+1 >= len(params) {
			event = event.Interface("extra", params[i])
			break
		}
		if err, ok := params[i+1].(error); ok {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, params[i+1])
	}
	return event
}

// WatermillLogger adapts zerolog to watermill.LoggerAdapter.
type WatermillLogger struct {
	logger zerolog.Logger
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*WatermillLogger)(nil)

// NewWatermillLogger returns a watermill logger tagged with component=events.
func NewWatermillLogger() *WatermillLogger {
	return &WatermillLogger{logger: WithComponent("events")}
}

// Error implements watermill.LoggerAdapter.
func (l *WatermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.emit(l.logger.Error().Err(err), fields).Msg(msg)
}

// Info implements watermill.LoggerAdapter.
func (l *WatermillLogger) Info(msg string, fields watermill.LogFields) {
	l.emit(l.logger.Info(), fields).Msg(msg)
}

// Debug implements watermill.LoggerAdapter.
func (l *WatermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.emit(l.logger.Debug(), fields).Msg(msg)
}

// Trace implements watermill.LoggerAdapter.
func (l *WatermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.emit(l.logger.Trace(), fields).Msg(msg)
}

// With implements watermill.LoggerAdapter.
func (l *WatermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &WatermillLogger{logger: l.logger, fields: l.fields.Add(fields)}
}

func (l *WatermillLogger) emit(event *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range l.fields {
		event = event.Interface(k, v)
	}
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
