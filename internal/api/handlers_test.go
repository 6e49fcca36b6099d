// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/database"
	"github.com/tomtom215/mediasync/internal/jobs"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/middleware"
	"github.com/tomtom215/mediasync/internal/models"
	"github.com/tomtom215/mediasync/internal/scheduler"
	"github.com/tomtom215/mediasync/internal/sessions"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	servers   map[string]*models.Server
	results   []*models.JobResult
	lastQuery models.JobResultFilter
	err       error
}

func (f *fakeStore) GetServer(_ context.Context, id string) (*models.Server, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.servers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) ListServers(context.Context) ([]*models.Server, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]*models.Server, 0, len(f.servers))
	for _, id := range []string{"jf1", "jf2", "jf3"} {
		if s, ok := f.servers[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ListJobResults(_ context.Context, q models.JobResultFilter) ([]*models.JobResult, error) {
	f.lastQuery = q
	return f.results, f.err
}

type fakeEnqueuer struct {
	mu     sync.Mutex
	queued []jobs.Payload
	err    error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, p jobs.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.queued = append(f.queued, p)
	return "job-" + string(p.JobName()), nil
}

type fakeScheduler struct {
	status  scheduler.Status
	updates []scheduler.Update
	err     error
}

func (f *fakeScheduler) GetStatus() scheduler.Status { return f.status }

func (f *fakeScheduler) UpdateConfig(u scheduler.Update) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, u)
	if u.Enabled != nil {
		f.status.Enabled = *u.Enabled
	}
	return nil
}

type fakePoller struct {
	active map[string][]sessions.TrackedSession
}

func (f *fakePoller) GetStatus() sessions.Status {
	return sessions.Status{Running: true, Interval: "5s", Tracked: map[string]int{"jf1": len(f.active["jf1"])}}
}

func (f *fakePoller) ActiveSessions(serverID string) []sessions.TrackedSession {
	return f.active[serverID]
}

type fakeEmbeddings struct {
	serverID      string
	batchSize     int
	maxIterations int
}

func (f *fakeEmbeddings) Start(_ context.Context, serverID string, batchSize, maxIterations int) (string, error) {
	f.serverID, f.batchSize, f.maxIterations = serverID, batchSize, maxIterations
	return "job-embed", nil
}

type harness struct {
	store  *fakeStore
	enq    *fakeEnqueuer
	sched  *fakeScheduler
	poller *fakePoller
	embed  *fakeEmbeddings
	router http.Handler
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	started := testNow.Add(-time.Hour)
	oldStart := testNow.Add(-7 * time.Hour)
	h := &harness{
		store: &fakeStore{servers: map[string]*models.Server{
			"jf1": {ID: "jf1", Name: "Living room", SyncStatus: models.SyncStatusCompleted},
			"jf2": {ID: "jf2", Name: "Busy", SyncStatus: models.SyncStatusSyncing, LastSyncStarted: &started},
			"jf3": {ID: "jf3", Name: "Stuck", SyncStatus: models.SyncStatusSyncing, LastSyncStarted: &oldStart},
		}},
		enq:   &fakeEnqueuer{},
		sched: &fakeScheduler{status: scheduler.Status{Enabled: true, Triggers: map[string]string{"users": "0 3 * * *"}}},
		poller: &fakePoller{active: map[string][]sessions.TrackedSession{
			"jf1": {{ServerID: "jf1", SessionKey: "k1", UserID: "u1", ItemID: "i1"}},
		}},
		embed: &fakeEmbeddings{},
	}
	handler := NewHandler(Deps{
		Store:      h.store,
		Jobs:       h.enq,
		Scheduler:  h.sched,
		Poller:     h.poller,
		Embeddings: h.embed,
		Health: map[string]func(context.Context) error{
			"database": func(context.Context) error { return nil },
		},
		StaleLockAfter: 6 * time.Hour,
	})
	handler.now = func() time.Time { return testNow }
	h.router = NewRouter(handler, NewMiddleware(config.HTTPConfig{}))
	return h
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
	Meta    *APIMeta        `json:"meta"`
}

func (h *harness) do(t *testing.T, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(target, "/api/") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func TestTriggerSync_DefaultsToFull(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodPost, "/api/v1/servers/jf1/sync", "")
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	var out models.SyncTriggerResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, models.SyncTriggerResponse{ServerID: "jf1", JobName: "full-sync", JobID: "job-full-sync"}, out)

	require.Len(t, h.enq.queued, 1)
	assert.Equal(t, jobs.FullSyncPayload{ServerID: "jf1"}, h.enq.queued[0])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Equal(t, rec.Header().Get("X-Request-Id"), env.Meta.RequestID)
}

func TestTriggerSync_TypeSelection(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/servers/jf1/sync?type=recent-items", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	rec, _ = h.do(t, http.MethodPost, "/api/v1/servers/jf1/sync", `{"type":"users"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	require.Len(t, h.enq.queued, 2)
	assert.Equal(t, jobs.NameRecentItemsSync, h.enq.queued[0].JobName())
	assert.Equal(t, jobs.NameUsersSync, h.enq.queued[1].JobName())
}

func TestTriggerSync_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"unknown server", "/api/v1/servers/nope/sync", "", http.StatusNotFound, ErrCodeNotFound},
		{"unknown type", "/api/v1/servers/jf1/sync?type=everything", "", http.StatusBadRequest, ErrCodeBadRequest},
		{"invalid body type", "/api/v1/servers/jf1/sync", `{"type":"everything"}`, http.StatusBadRequest, ErrCodeValidationFailed},
		{"unknown body field", "/api/v1/servers/jf1/sync", `{"kind":"users"}`, http.StatusBadRequest, ErrCodeBadRequest},
		{"already syncing", "/api/v1/servers/jf2/sync", "", http.StatusConflict, ErrCodeSyncInProgress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec, env := h.do(t, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.Empty(t, h.enq.queued)
		})
	}
}

func TestTriggerSync_StaleLockIsRetriggerable(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodPost, "/api/v1/servers/jf3/sync", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, h.enq.queued, 1)
}

func TestTriggerSync_EnqueueFailure(t *testing.T) {
	h := newHarness(t)
	h.enq.err = errors.New("queue closed")
	rec, env := h.do(t, http.MethodPost, "/api/v1/servers/jf1/sync", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, env.Error.Code)
}

func TestListServers_NeedsAttention(t *testing.T) {
	h := newHarness(t)
	h.store.servers["jf1"].SyncStatus = models.SyncStatusFailed

	rec, env := h.do(t, http.MethodGet, "/api/v1/servers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, env.Meta.Count)
	assert.Equal(t, 3, *env.Meta.Count)

	var views []struct {
		ID             string `json:"id"`
		APIKey         string `json:"api_key_encrypted"`
		NeedsAttention bool   `json:"needs_attention"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &views))
	got := map[string]bool{}
	for _, v := range views {
		got[v.ID] = v.NeedsAttention
		assert.Empty(t, v.APIKey)
	}
	assert.Equal(t, map[string]bool{"jf1": true, "jf2": false, "jf3": true}, got)
}

func TestListServers_DatabaseError(t *testing.T) {
	h := newHarness(t)
	h.store.err = errors.New("disk full")
	rec, env := h.do(t, http.MethodGet, "/api/v1/servers", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeDatabaseError, env.Error.Code)
	assert.NotContains(t, rec.Body.String(), "disk full")
}

func TestScheduler_GetAndPatch(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodGet, "/api/v1/scheduler", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st scheduler.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Enabled)

	rec, env = h.do(t, http.MethodPatch, "/api/v1/scheduler", `{"enabled":false,"users":"0 4 * * *"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.False(t, st.Enabled)

	require.Len(t, h.sched.updates, 1)
	u := h.sched.updates[0]
	require.NotNil(t, u.Users)
	assert.Equal(t, "0 4 * * *", *u.Users)
	assert.Nil(t, u.FullSync)
}

func TestScheduler_PatchValidation(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodPatch, "/api/v1/scheduler", `{"full_sync":"not a cron"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeValidationFailed, env.Error.Code)
	assert.Empty(t, h.sched.updates)

	rec, env = h.do(t, http.MethodPatch, "/api/v1/scheduler", `{"enabled":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeBadRequest, env.Error.Code)

	h.sched.err = errors.New("stale_sweep: empty expression")
	rec, env = h.do(t, http.MethodPatch, "/api/v1/scheduler", `{"enabled":true}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeValidationFailed, env.Error.Code)
}

func TestPoller_StatusAndSessions(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodGet, "/api/v1/poller", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st sessions.Status
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Running)
	assert.Equal(t, 1, st.Tracked["jf1"])

	rec, env = h.do(t, http.MethodGet, "/api/v1/servers/jf1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var active []sessions.TrackedSession
	require.NoError(t, json.Unmarshal(env.Data, &active))
	require.Len(t, active, 1)
	assert.Equal(t, "k1", active[0].SessionKey)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/servers/nope/sessions", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDisabledComponents(t *testing.T) {
	handler := NewHandler(Deps{Store: &fakeStore{servers: map[string]*models.Server{"jf1": {ID: "jf1"}}}, Jobs: &fakeEnqueuer{}})
	router := NewRouter(handler, NewMiddleware(config.HTTPConfig{}))

	for _, tc := range []struct{ method, target, component string }{
		{http.MethodGet, "/api/v1/poller", "session poller"},
		{http.MethodGet, "/api/v1/scheduler", "scheduler"},
		{http.MethodGet, "/api/v1/servers/jf1/sessions", "session poller"},
		{http.MethodPost, "/api/v1/servers/jf1/embeddings", "embedding pipeline"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.target, http.NoBody))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.target)

		var env envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.NotNil(t, env.Error, tc.target)
		assert.Equal(t, ErrCodeComponentDisabled, env.Error.Code, tc.target)
		assert.Equal(t, map[string]any{"component": tc.component}, env.Error.Details, tc.target)
	}
}

func TestJobResults_Filters(t *testing.T) {
	h := newHarness(t)
	h.store.results = []*models.JobResult{{Seq: 2, JobID: "a", JobName: "users-sync", Status: models.JobStatusFailed}}

	rec, env := h.do(t, http.MethodGet, "/api/v1/jobs/results?job_name=users-sync&status=failed&limit=10&server_id=jf1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 1, *env.Meta.Count)
	assert.Equal(t, models.JobResultFilter{JobName: "users-sync", ServerID: "jf1", Status: models.JobStatusFailed, Limit: 10}, h.store.lastQuery)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/jobs/results?limit=100000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxResultsLimit, h.store.lastQuery.Limit)

	h.store.results = nil
	rec, env = h.do(t, http.MethodGet, "/api/v1/jobs/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, defaultResultsLimit, h.store.lastQuery.Limit)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestJobResults_BadQueries(t *testing.T) {
	h := newHarness(t)
	for _, q := range []string{"?status=running", "?job_name=reindex", "?limit=0", "?limit=ten"} {
		rec, env := h.do(t, http.MethodGet, "/api/v1/jobs/results"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.Equal(t, ErrCodeBadRequest, env.Error.Code, q)
	}
}

func TestStartEmbeddings(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodPost, "/api/v1/servers/jf1/embeddings", `{"batch_size":25}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var out models.SyncTriggerResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "generate-item-embeddings", out.JobName)
	assert.Equal(t, "job-embed", out.JobID)
	assert.Equal(t, "jf1", h.embed.serverID)
	assert.Equal(t, 25, h.embed.batchSize)
	assert.Zero(t, h.embed.maxIterations)

	rec, env = h.do(t, http.MethodPost, "/api/v1/servers/jf1/embeddings", `{"batch_size":0,"max_iterations":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, ErrCodeValidationFailed, env.Error.Code)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/servers/nope/embeddings", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec, _ := h.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, map[string]string{"database": "ok"}, st.Components)

	handler := NewHandler(Deps{Health: map[string]func(context.Context) error{
		"database":  func(context.Context) error { return nil },
		"job-queue": func(context.Context) error { return errors.New("database is locked") },
	}})
	rec = httptest.NewRecorder()
	NewRouter(handler, NewMiddleware(config.HTTPConfig{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", http.NoBody))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "degraded", st.Status)
	assert.Equal(t, "database is locked", st.Components["job-queue"])
}

func TestMetricsEndpointAndRequestCounter(t *testing.T) {
	h := newHarness(t)
	counter := metrics.APIRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/servers/{id}/sessions", "200")
	before := testutil.ToFloat64(counter)

	rec, _ := h.do(t, http.MethodGet, "/api/v1/servers/jf1/sessions", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	rec, _ = h.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "api_requests_total")
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t)
	handler := NewHandler(Deps{Store: h.store, Jobs: h.enq})
	router := NewRouter(handler, NewMiddleware(config.HTTPConfig{RateLimit: 2, RateWindow: time.Minute}))

	codes := make([]int, 0, 3)
	for range 3 {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/servers", http.NoBody)
		req.RemoteAddr = "203.0.113.9:4000"
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestPerformanceStats(t *testing.T) {
	h := newHarness(t)

	for range 2 {
		rec, _ := h.do(t, http.MethodGet, "/api/v1/servers", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec, env := h.do(t, http.MethodGet, "/api/v1/performance", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats []middleware.EndpointStats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	require.NotEmpty(t, stats)
	assert.Equal(t, "GET /api/v1/servers", stats[0].Endpoint)
	assert.Equal(t, 2, stats[0].RequestCount)
}
