// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
)

var _ Client = (*CircuitBreakerClient)(nil)

// CircuitBreakerClient wraps a Client with a circuit breaker so a dead
// server fails fast instead of tying up job workers.
//
// The breaker uses real time for its interval and timeout. Authentication
// failures do not count against it: they will not heal by waiting.
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewCircuitBreakerClient wraps client. name labels logs and metrics.
// Circuit breaker configuration:
//   - Max 3 concurrent requests in half-open state
//   - 1 minute measurement window
//   - 2 minute timeout before attempting recovery
//   - Opens after 60% failure rate with minimum 10 requests
func NewCircuitBreakerClient(name string, client Client) *CircuitBreakerClient {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Str("breaker", name).
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrAuth) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("breaker", name).Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: name}
}

// State returns the current breaker state as a string.
func (cbc *CircuitBreakerClient) State() string {
	return stateToString(cbc.cb.State())
}

// execute runs fn through the breaker and records the outcome.
func execute[T any](cbc *CircuitBreakerClient, fn func() (T, error)) (T, error) {
	result, err := cbc.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "rejected").Inc()
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "failure").Inc()
		}
		return zero, err
	}
	metrics.CircuitBreakerRequests.WithLabelValues(cbc.name, "success").Inc()

	v, _ := result.(T)
	return v, nil
}

// GetSystemInfo implements Client.
func (cbc *CircuitBreakerClient) GetSystemInfo(ctx context.Context) (*models.JellyfinSystemInfo, error) {
	return execute(cbc, func() (*models.JellyfinSystemInfo, error) { return cbc.client.GetSystemInfo(ctx) })
}

// GetUsers implements Client.
func (cbc *CircuitBreakerClient) GetUsers(ctx context.Context) ([]models.JellyfinUser, error) {
	return execute(cbc, func() ([]models.JellyfinUser, error) { return cbc.client.GetUsers(ctx) })
}

// GetLibraries implements Client.
func (cbc *CircuitBreakerClient) GetLibraries(ctx context.Context) ([]models.JellyfinLibrary, error) {
	return execute(cbc, func() ([]models.JellyfinLibrary, error) { return cbc.client.GetLibraries(ctx) })
}

// GetItems implements Client.
func (cbc *CircuitBreakerClient) GetItems(ctx context.Context, q ItemsQuery) (*models.JellyfinItemsResponse, error) {
	return execute(cbc, func() (*models.JellyfinItemsResponse, error) { return cbc.client.GetItems(ctx, q) })
}

// GetActivityLog implements Client.
func (cbc *CircuitBreakerClient) GetActivityLog(ctx context.Context, startIndex, limit int) (*models.JellyfinActivityLogResponse, error) {
	return execute(cbc, func() (*models.JellyfinActivityLogResponse, error) {
		return cbc.client.GetActivityLog(ctx, startIndex, limit)
	})
}

// GetSessions implements Client.
func (cbc *CircuitBreakerClient) GetSessions(ctx context.Context) ([]models.JellyfinSession, error) {
	return execute(cbc, func() ([]models.JellyfinSession, error) { return cbc.client.GetSessions(ctx) })
}

// stateToFloat converts circuit breaker state to a gauge value.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to string for logging.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
