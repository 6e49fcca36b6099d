// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/mediasync/internal/database"
	"github.com/tomtom215/mediasync/internal/models"
)

// fakeRepo is an in-memory Repository and LockStore.
type fakeRepo struct {
	mu       gosync.Mutex
	entities map[string]models.Entity
	failIDs  map[string]bool
	progress []models.SyncProgress
	servers  map[string]*models.Server

	upsertDelay time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	upserts     atomic.Int32
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		entities: make(map[string]models.Entity),
		failIDs:  make(map[string]bool),
		servers:  make(map[string]*models.Server),
	}
}

func entityKey(kind models.EntityKind, key models.EntityKey) string {
	return string(kind) + "/" + key.ServerID + "/" + key.ExternalID
}

func cloneEntity(e models.Entity) models.Entity {
	switch v := e.(type) {
	case *models.User:
		c := *v
		return &c
	case *models.Library:
		c := *v
		return &c
	case *models.Item:
		c := *v
		c.Genres = append([]string(nil), v.Genres...)
		c.People = append([]string(nil), v.People...)
		return &c
	case *models.Activity:
		c := *v
		return &c
	}
	panic(fmt.Sprintf("unexpected entity %T", e))
}

func (r *fakeRepo) Upsert(_ context.Context, e models.Entity) error {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		m := r.maxInFlight.Load()
		if n <= m || r.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if r.upsertDelay > 0 {
		time.Sleep(r.upsertDelay)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failIDs[e.Key().ExternalID] {
		return errors.New("constraint violation")
	}
	r.upserts.Add(1)
	r.entities[entityKey(e.Kind(), e.Key())] = cloneEntity(e)
	return nil
}

func (r *fakeRepo) FindOne(_ context.Context, kind models.EntityKind, key models.EntityKey) (models.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[entityKey(kind, key)]
	if !ok {
		return nil, database.ErrNotFound
	}
	return cloneEntity(e), nil
}

func (r *fakeRepo) LatestActivity(_ context.Context, serverID string) (*models.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Activity
	for _, e := range r.entities {
		if a, ok := e.(*models.Activity); ok && a.ServerID == serverID && (latest == nil || a.Seq > latest.Seq) {
			latest = a
		}
	}
	if latest == nil {
		return nil, database.ErrNotFound
	}
	c := *latest
	return &c, nil
}

func (r *fakeRepo) UpdateSyncProgress(_ context.Context, _ string, p models.SyncProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
	return nil
}

func (r *fakeRepo) count(kind models.EntityKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entities {
		if e.Kind() == kind {
			n++
		}
	}
	return n
}

func (r *fakeRepo) GetServer(_ context.Context, id string) (*models.Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	c := *s
	return &c, nil
}

func (r *fakeRepo) TryBeginSync(_ context.Context, id string, now, staleBefore time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[id]
	if !ok {
		return false, nil
	}
	if s.SyncStatus == models.SyncStatusSyncing && s.LastSyncStarted != nil && !s.LastSyncStarted.Before(staleBefore) {
		return false, nil
	}
	s.SyncStatus = models.SyncStatusSyncing
	s.LastSyncStarted = &now
	s.SyncError = ""
	return true, nil
}

func (r *fakeRepo) CompleteSync(_ context.Context, id, summary string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.servers[id]
	s.SyncStatus = models.SyncStatusCompleted
	s.SyncError = summary
	s.LastSyncCompleted = &now
	return nil
}

func (r *fakeRepo) FailSync(_ context.Context, id, message string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.servers[id]
	s.SyncStatus = models.SyncStatusFailed
	s.SyncError = message
	return nil
}

// fakeClient serves canned responses.
type fakeClient struct {
	mu        gosync.Mutex
	users     []models.JellyfinUser
	libraries []models.JellyfinLibrary
	items     map[string][]models.JellyfinItem // by library id
	recent    []models.JellyfinItem
	activity  []models.JellyfinActivityLogEntry // newest first
	sessions  []models.JellyfinSession

	err          error // returned by every call when set
	itemsErrLib  string
	activityHits int
	itemCalls    int
}

var _ Client = (*fakeClient)(nil)

func (c *fakeClient) GetSystemInfo(context.Context) (*models.JellyfinSystemInfo, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &models.JellyfinSystemInfo{ID: "srv", ServerName: "fake"}, nil
}

func (c *fakeClient) GetUsers(context.Context) ([]models.JellyfinUser, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.users, nil
}

func (c *fakeClient) GetLibraries(context.Context) ([]models.JellyfinLibrary, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.libraries, nil
}

func (c *fakeClient) GetItems(_ context.Context, q ItemsQuery) (*models.JellyfinItemsResponse, error) {
	c.mu.Lock()
	c.itemCalls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	if q.ParentID != "" && q.ParentID == c.itemsErrLib {
		return nil, &APIError{Endpoint: "items", StatusCode: 500}
	}
	all := c.items[q.ParentID]
	if q.Recent {
		all = c.recent
	}
	return &models.JellyfinItemsResponse{
		Items:            page(all, q.StartIndex, q.Limit),
		TotalRecordCount: len(all),
		StartIndex:       q.StartIndex,
	}, nil
}

func (c *fakeClient) GetActivityLog(_ context.Context, startIndex, limit int) (*models.JellyfinActivityLogResponse, error) {
	c.mu.Lock()
	c.activityHits++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return &models.JellyfinActivityLogResponse{
		Items:            page(c.activity, startIndex, limit),
		TotalRecordCount: len(c.activity),
		StartIndex:       startIndex,
	}, nil
}

func (c *fakeClient) GetSessions(context.Context) ([]models.JellyfinSession, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.sessions, nil
}

func page[T any](all []T, start, limit int) []T {
	if start >= len(all) {
		return nil
	}
	end := min(start+limit, len(all))
	return all[start:end]
}

type staticProvider struct{ client Client }

func (p staticProvider) For(*models.Server) (Client, error) { return p.client, nil }

func makeUsers(n int) []models.JellyfinUser {
	users := make([]models.JellyfinUser, n)
	for i := range users {
		users[i] = models.JellyfinUser{
			ID:            fmt.Sprintf("user-%02d", i),
			Name:          fmt.Sprintf("User %d", i),
			LastLoginDate: "2025-01-02T03:04:05.1234567Z",
			Policy:        &models.JellyfinUserPolicy{IsAdministrator: i == 0},
		}
	}
	return users
}

func makeItems(prefix string, n int) []models.JellyfinItem {
	items := make([]models.JellyfinItem, n)
	for i := range items {
		items[i] = models.JellyfinItem{
			ID:             fmt.Sprintf("%s-%03d", prefix, i),
			Name:           fmt.Sprintf("Title %d", i),
			Type:           "Movie",
			ProductionYear: 2000 + i%20,
			Genres:         []string{"Drama"},
			Etag:           fmt.Sprintf("etag-%d", i),
		}
	}
	return items
}

// makeActivity returns entries with ids newest..1, newest first.
func makeActivity(newest int64) []models.JellyfinActivityLogEntry {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.JellyfinActivityLogEntry, 0, newest)
	for id := newest; id >= 1; id-- {
		out = append(out, models.JellyfinActivityLogEntry{
			ID:       id,
			Name:     fmt.Sprintf("event %d", id),
			Type:     "VideoPlayback",
			Date:     base.Add(time.Duration(id) * time.Minute).Format(time.RFC3339Nano),
			Severity: "Information",
		})
	}
	return out
}
