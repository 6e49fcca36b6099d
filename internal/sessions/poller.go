// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
Package sessions tracks live playback sessions and turns them into history.

The Poller fetches /Sessions from every server at a fixed interval and diffs
each snapshot against an Arena of tracked sessions. A session that
disappears is finalized: its accrued play time, percent complete and
completion flag are computed once, the record is persisted, and a
finalized-session event is published. Sessions that never played for more
than a second are dropped as previews or player checks.

Servers are polled one after another. A failing server is logged and
skipped; its tracked sessions stay untouched until it answers again.

Records the store rejects wait in a bounded retry list. With a Journal
configured the list is mirrored to disk and reloaded by Start, so a
restart while the database is down loses nothing.
*/
package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
)

// minPlayDuration is the accrued play time a session must exceed to be
// persisted.
const minPlayDuration = time.Second

const (
	defaultPollInterval      = 5 * time.Second
	defaultMaxPendingRetries = 1000
)

// SessionSource lists the live sessions of one media server.
type SessionSource interface {
	GetSessions(ctx context.Context) ([]models.JellyfinSession, error)
}

// SourceFunc resolves the session source of a server.
type SourceFunc func(server *models.Server) (SessionSource, error)

// Store is the persistence the poller needs.
type Store interface {
	ListServers(ctx context.Context) ([]*models.Server, error)
	InsertSessionRecord(ctx context.Context, r *models.SessionRecord) error
}

// Publisher announces finalized sessions. Implementations must not block
// for long; the poller calls it inline.
type Publisher interface {
	PublishSession(ctx context.Context, r *models.SessionRecord) error
}

// Journal durably mirrors the retry list.
type Journal interface {
	Append(ctx context.Context, r *models.SessionRecord) error
	RecordFailure(ctx context.Context, id string, cause error) error
	Remove(ctx context.Context, id string) error
	Pending(ctx context.Context) ([]*models.SessionRecord, error)
}

// Status is the poller state reported by the admin API.
type Status struct {
	Running        bool              `json:"running"`
	Interval       string            `json:"interval"`
	LastPoll       *time.Time        `json:"last_poll,omitempty"`
	Tracked        map[string]int    `json:"tracked"`
	LastErrors     map[string]string `json:"last_errors,omitempty"`
	PendingRetries int               `json:"pending_retries"`
}

// Option customizes a Poller.
type Option func(*Poller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithPublisher sets the finalized-session publisher.
func WithPublisher(pub Publisher) Option {
	return func(p *Poller) { p.publisher = pub }
}

// WithJournal mirrors the retry list to j.
func WithJournal(j Journal) Option {
	return func(p *Poller) { p.journal = j }
}

// Poller periodically snapshots live sessions of every server.
type Poller struct {
	store      Store
	sources    SourceFunc
	publisher  Publisher
	journal    Journal
	arena      *Arena
	interval   time.Duration
	maxPending int
	now        func() time.Time

	mu         sync.RWMutex
	running    bool
	stopChan   chan struct{}
	wg         sync.WaitGroup
	lastPoll   *time.Time
	lastErrors map[string]string

	pendingMu sync.Mutex
	pending   []*models.SessionRecord
}

// NewPoller creates a Poller. It does not start polling.
func NewPoller(cfg config.SessionsConfig, store Store, sources SourceFunc, opts ...Option) *Poller {
	p := &Poller{
		store:      store,
		sources:    sources,
		arena:      NewArena(),
		interval:   cfg.PollInterval,
		maxPending: cfg.MaxPendingRetries,
		now:        time.Now,
		lastErrors: make(map[string]string),
	}
	if p.interval <= 0 {
		p.interval = defaultPollInterval
	}
	if p.maxPending <= 0 {
		p.maxPending = defaultMaxPendingRetries
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start begins the polling loop. Calling Start on a running poller is a
// no-op.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = true
	p.stopChan = make(chan struct{})
	stop := p.stopChan
	p.mu.Unlock()

	logging.Info().Dur("interval", p.interval).Msg("Starting session poller")
	p.recoverJournal(ctx)

	p.wg.Add(1)
	go p.pollLoop(ctx, stop)
	return nil
}

// Stop ends the polling loop and waits for an in-flight tick.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopChan)
	p.mu.Unlock()

	p.wg.Wait()
	logging.Info().Msg("Session poller stopped")
}

func (p *Poller) pollLoop(ctx context.Context, stop <-chan struct{}) {
	defer p.wg.Done()

	p.Poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.running = false
			p.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one tick: retry pending records, then reconcile every server
// in turn.
func (p *Poller) Poll(ctx context.Context) {
	metrics.PollerTicks.Inc()
	p.retryPending(ctx)

	servers, err := p.store.ListServers(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Session poller failed to list servers")
		return
	}

	for _, server := range servers {
		if ctx.Err() != nil {
			return
		}
		p.pollServer(ctx, server)
	}

	now := p.now()
	p.mu.Lock()
	p.lastPoll = &now
	p.mu.Unlock()
}

func (p *Poller) pollServer(ctx context.Context, server *models.Server) {
	ctx = logging.ContextWithServer(ctx, server.ID)

	live, err := p.fetch(ctx, server)
	if err != nil {
		metrics.PollerErrors.WithLabelValues(server.ID).Inc()
		logging.Ctx(ctx).Warn().Err(err).Msg("Failed to fetch sessions")
		p.setError(server.ID, err)
		return
	}
	p.setError(server.ID, nil)

	playable := make([]*models.JellyfinSession, 0, len(live))
	for i := range live {
		if IsPlayable(&live[i]) {
			playable = append(playable, &live[i])
		}
	}

	now := p.now()
	ended := p.arena.Reconcile(server.ID, playable, now)
	metrics.PollerTrackedSessions.WithLabelValues(server.ID).Set(float64(p.arena.Len(server.ID)))

	for _, t := range ended {
		p.finalize(ctx, t, now)
	}
}

func (p *Poller) fetch(ctx context.Context, server *models.Server) ([]models.JellyfinSession, error) {
	src, err := p.sources(server)
	if err != nil {
		return nil, err
	}
	return src.GetSessions(ctx)
}

func (p *Poller) finalize(ctx context.Context, t *TrackedSession, now time.Time) {
	if t.PlayDuration <= minPlayDuration {
		metrics.SessionsFinalized.WithLabelValues("discarded").Inc()
		logging.Ctx(ctx).Debug().
			Str("session_key", t.SessionKey).
			Dur("play_duration", t.PlayDuration).
			Msg("Discarding short session")
		return
	}

	rec := t.Record(now)
	if err := p.store.InsertSessionRecord(ctx, rec); err != nil {
		metrics.SessionsFinalized.WithLabelValues("retry").Inc()
		logging.Ctx(ctx).Error().Err(err).Str("record_id", rec.ID).Msg("Failed to persist session, queued for retry")
		if p.journal != nil {
			if jerr := p.journal.Append(ctx, rec); jerr != nil {
				logging.Ctx(ctx).Warn().Err(jerr).Str("record_id", rec.ID).Msg("Failed to journal session record")
			}
		}
		p.forget(ctx, p.enqueueRetry(rec))
		return
	}
	p.persisted(ctx, rec)
}

func (p *Poller) persisted(ctx context.Context, rec *models.SessionRecord) {
	metrics.SessionsFinalized.WithLabelValues("persisted").Inc()
	logging.Ctx(ctx).Info().
		Str("record_id", rec.ID).
		Str("user_id", rec.UserID).
		Str("item_id", rec.ItemID).
		Float64("play_seconds", rec.PlayDurationSeconds).
		Float64("percent_complete", rec.PercentComplete).
		Bool("completed", rec.Completed).
		Msg("Session finalized")

	if p.publisher == nil {
		return
	}
	if err := p.publisher.PublishSession(ctx, rec); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("record_id", rec.ID).Msg("Failed to publish finalized session")
	}
}

// enqueueRetry appends rec to the retry list and returns the record it
// evicted to stay within maxPending, if any.
func (p *Poller) enqueueRetry(rec *models.SessionRecord) *models.SessionRecord {
	p.pendingMu.Lock()
	defer p.pendingMu.Unlock()

	var dropped *models.SessionRecord
	if len(p.pending) >= p.maxPending {
		dropped = p.pending[0]
		p.pending = p.pending[1:]
		metrics.SessionsFinalized.WithLabelValues("dropped").Inc()
		logging.Warn().Str("record_id", dropped.ID).Msg("Session retry list full, dropping oldest record")
	}
	p.pending = append(p.pending, rec)
	return dropped
}

// forget removes a record from the journal once it is persisted or
// evicted.
func (p *Poller) forget(ctx context.Context, rec *models.SessionRecord) {
	if rec == nil || p.journal == nil {
		return
	}
	if err := p.journal.Remove(ctx, rec.ID); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("record_id", rec.ID).Msg("Failed to remove session record from journal")
	}
}

// recoverJournal loads records left in the journal by a previous run.
func (p *Poller) recoverJournal(ctx context.Context) {
	if p.journal == nil {
		return
	}
	recs, err := p.journal.Pending(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to read session journal")
		return
	}
	if len(recs) == 0 {
		return
	}

	p.pendingMu.Lock()
	queued := make(map[string]bool, len(p.pending))
	for _, r := range p.pending {
		queued[r.ID] = true
	}
	p.pendingMu.Unlock()

	recovered := 0
	for _, r := range recs {
		if queued[r.ID] {
			continue
		}
		p.forget(ctx, p.enqueueRetry(r))
		recovered++
	}
	logging.Info().Int("records", recovered).Msg("Recovered journaled session records")
}

func (p *Poller) retryPending(ctx context.Context) {
	p.pendingMu.Lock()
	batch := p.pending
	p.pending = nil
	p.pendingMu.Unlock()

	for i, rec := range batch {
		err := p.store.InsertSessionRecord(ctx, rec)
		if err == nil {
			p.forget(ctx, rec)
			p.persisted(ctx, rec)
			continue
		}
		// The store is likely still down; keep the rest for the next tick.
		logging.Warn().Err(err).Str("record_id", rec.ID).Msg("Session record retry failed")
		if p.journal != nil {
			if jerr := p.journal.RecordFailure(ctx, rec.ID, err); jerr != nil {
				logging.Warn().Err(jerr).Str("record_id", rec.ID).Msg("Failed to update session journal")
			}
		}
		for _, r := range batch[i:] {
			p.forget(ctx, p.enqueueRetry(r))
		}
		return
	}
}

func (p *Poller) setError(serverID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.lastErrors, serverID)
		return
	}
	p.lastErrors[serverID] = err.Error()
}

// GetStatus reports the poller state.
func (p *Poller) GetStatus() Status {
	p.mu.RLock()
	st := Status{
		Running:    p.running,
		Interval:   p.interval.String(),
		LastErrors: make(map[string]string, len(p.lastErrors)),
	}
	if p.lastPoll != nil {
		t := *p.lastPoll
		st.LastPoll = &t
	}
	for k, v := range p.lastErrors {
		st.LastErrors[k] = v
	}
	p.mu.RUnlock()

	st.Tracked = p.arena.Counts()

	p.pendingMu.Lock()
	st.PendingRetries = len(p.pending)
	p.pendingMu.Unlock()
	return st
}

// ActiveSessions returns copies of the sessions tracked for a server.
func (p *Poller) ActiveSessions(serverID string) []TrackedSession {
	return p.arena.Snapshot(serverID)
}
