// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/mediasync/internal/jobs"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/middleware"
	"github.com/tomtom215/mediasync/internal/models"
	"github.com/tomtom215/mediasync/internal/scheduler"
	"github.com/tomtom215/mediasync/internal/sessions"
	"github.com/tomtom215/mediasync/internal/validation"
	"github.com/tomtom215/mediasync/internal/websocket"
)

const (
	defaultResultsLimit = 50
	maxResultsLimit     = 500
	maxBodyBytes        = 64 << 10
)

// Store is the repository surface the admin API reads.
type Store interface {
	GetServer(ctx context.Context, id string) (*models.Server, error)
	ListServers(ctx context.Context) ([]*models.Server, error)
	ListJobResults(ctx context.Context, f models.JobResultFilter) ([]*models.JobResult, error)
}

// Scheduler is the scheduler control surface.
type Scheduler interface {
	GetStatus() scheduler.Status
	UpdateConfig(u scheduler.Update) error
}

// Poller is the session poller status surface.
type Poller interface {
	GetStatus() sessions.Status
	ActiveSessions(serverID string) []sessions.TrackedSession
}

// EmbeddingStarter starts the embedding pipeline of a server.
type EmbeddingStarter interface {
	Start(ctx context.Context, serverID string, batchSize, maxIterations int) (string, error)
}

// Deps are the collaborators of the admin API. Scheduler, Poller and
// Embeddings may be nil when the component is disabled.
type Deps struct {
	Store      Store
	Jobs       jobs.Enqueuer
	Scheduler  Scheduler
	Poller     Poller
	Embeddings EmbeddingStarter

	// Health checks run by GET /health, by component name.
	Health map[string]func(context.Context) error

	// StaleLockAfter decides needs_attention for servers stuck syncing.
	StaleLockAfter time.Duration

	// Performance collects per-route latency. A default monitor is
	// created when nil.
	Performance *middleware.PerformanceMonitor

	// Stream serves the live session feed; nil disables it.
	Stream *websocket.Hub

	// AllowedOrigins are the browser origins accepted by the session
	// stream. "*" accepts any origin.
	AllowedOrigins []string
}

// Handler serves the admin endpoints.
type Handler struct {
	deps Deps
	now  func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	if deps.StaleLockAfter <= 0 {
		deps.StaleLockAfter = 6 * time.Hour
	}
	if deps.Performance == nil {
		deps.Performance = middleware.NewPerformanceMonitor(0, 0)
	}
	return &Handler{deps: deps, now: time.Now}
}

// TriggerSync enqueues a sync job for one server. ?type= or the body's
// type selects the kind; it defaults to full.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	var req models.SyncTriggerRequest
	if !decodeOptional(rw, w, r, &req) {
		return
	}
	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = req.Type
	}
	if kind == "" {
		kind = "full"
	}
	name, err := jobs.ParseName(kind + "-sync")
	if err != nil {
		rw.BadRequest("unknown sync type: " + kind)
		return
	}

	server, ok := h.server(rw, r, id)
	if !ok {
		return
	}
	if server.IsSyncing() && !server.NeedsAttention(h.now(), h.deps.StaleLockAfter) {
		rw.SyncInProgress(id)
		return
	}

	payload, err := jobs.ForServer(name, id)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}
	jobID, err := h.deps.Jobs.Enqueue(r.Context(), payload)
	if err != nil {
		rw.InternalError("failed to enqueue sync", err)
		return
	}
	logging.Ctx(r.Context()).Info().Str("server_id", id).Str("job_name", string(name)).Str("job_id", jobID).Msg("Sync triggered")
	rw.Accepted(models.SyncTriggerResponse{ServerID: id, JobName: string(name), JobID: jobID})
}

// StartEmbeddings enqueues the first batch of the embedding pipeline.
func (h *Handler) StartEmbeddings(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Embeddings == nil {
		rw.Disabled("embedding pipeline")
		return
	}
	var req models.EmbeddingTriggerRequest
	if !decodeOptional(rw, w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := h.server(rw, r, id); !ok {
		return
	}
	jobID, err := h.deps.Embeddings.Start(r.Context(), id, req.BatchSize, req.MaxIterations)
	if err != nil {
		rw.InternalError("failed to start embedding pipeline", err)
		return
	}
	rw.Accepted(models.SyncTriggerResponse{ServerID: id, JobName: string(jobs.NameGenerateEmbeddings), JobID: jobID})
}

// ListServers returns every server with its needs_attention flag.
func (h *Handler) ListServers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	servers, err := h.deps.Store.ListServers(r.Context())
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	now := h.now()
	views := make([]models.ServerView, 0, len(servers))
	for _, s := range servers {
		views = append(views, models.ServerView{Server: s, NeedsAttention: s.NeedsAttention(now, h.deps.StaleLockAfter)})
	}
	rw.List(views, len(views))
}

// ActiveSessions returns the tracked sessions of one server.
func (h *Handler) ActiveSessions(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Poller == nil {
		rw.Disabled("session poller")
		return
	}
	id := chi.URLParam(r, "id")
	if _, ok := h.server(rw, r, id); !ok {
		return
	}
	active := h.deps.Poller.ActiveSessions(id)
	rw.List(active, len(active))
}

// PollerStatus reports the session poller state.
func (h *Handler) PollerStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Poller == nil {
		rw.Disabled("session poller")
		return
	}
	rw.Success(h.deps.Poller.GetStatus())
}

// PerformanceStats lists latency percentiles per route over the recent
// request window.
func (h *Handler) PerformanceStats(w http.ResponseWriter, r *http.Request) {
	stats := h.deps.Performance.Stats()
	NewResponseWriter(w, r).List(stats, len(stats))
}

// SchedulerStatus reports the trigger configuration and next fire times.
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Scheduler == nil {
		rw.Disabled("scheduler")
		return
	}
	rw.Success(h.deps.Scheduler.GetStatus())
}

// UpdateScheduler applies a partial scheduler configuration.
func (h *Handler) UpdateScheduler(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if h.deps.Scheduler == nil {
		rw.Disabled("scheduler")
		return
	}

	var req models.SchedulerUpdateRequest
	if !decodeOptional(rw, w, r, &req) {
		return
	}
	u := scheduler.Update{
		Enabled:          req.Enabled,
		RecentActivities: req.RecentActivities,
		RecentItems:      req.RecentItems,
		Users:            req.Users,
		FullSync:         req.FullSync,
		StaleSweep:       req.StaleSweep,
	}
	if err := h.deps.Scheduler.UpdateConfig(u); err != nil {
		rw.ValidationError("invalid scheduler configuration", err.Error())
		return
	}
	rw.Success(h.deps.Scheduler.GetStatus())
}

// JobResults lists job bookkeeping rows, newest first.
func (h *Handler) JobResults(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	q := r.URL.Query()

	f := models.JobResultFilter{
		JobID:    q.Get("job_id"),
		ServerID: q.Get("server_id"),
		Limit:    defaultResultsLimit,
	}
	if name := q.Get("job_name"); name != "" {
		n, err := jobs.ParseName(name)
		if err != nil {
			rw.BadRequest(err.Error())
			return
		}
		f.JobName = string(n)
	}
	switch status := models.JobStatus(q.Get("status")); status {
	case "", models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusFailed:
		f.Status = status
	default:
		rw.BadRequest("status must be processing, completed or failed")
		return
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			rw.BadRequest("limit must be a positive integer")
			return
		}
		f.Limit = min(limit, maxResultsLimit)
	}

	results, err := h.deps.Store.ListJobResults(r.Context(), f)
	if err != nil {
		rw.DatabaseError(err)
		return
	}
	if results == nil {
		results = []*models.JobResult{}
	}
	rw.List(results, len(results))
}

// decodeOptional decodes and validates a JSON body into dst. An empty body
// leaves dst at its zero value.
func decodeOptional(rw *ResponseWriter, w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		rw.BadRequest("invalid request body: " + err.Error())
		return false
	}
	if verr := validation.ValidateStruct(dst); verr != nil {
		rw.ValidationError(verr.Error(), verr.ToAPIError().Details)
		return false
	}
	return true
}

// server loads a server or writes the error response.
func (h *Handler) server(rw *ResponseWriter, r *http.Request, id string) (*models.Server, bool) {
	s, err := h.deps.Store.GetServer(r.Context(), id)
	if err != nil {
		rw.LookupError("server", id, err)
		return nil, false
	}
	return s, true
}
