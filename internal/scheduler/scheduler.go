// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package scheduler fires the named cron triggers that enqueue sync jobs
// for every server and run the stale-job sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/jobs"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/metrics"
	"github.com/tomtom215/mediasync/internal/models"
	"github.com/tomtom215/mediasync/internal/validation"
)

// Trigger names a scheduled action.
type Trigger string

const (
	TriggerRecentActivities Trigger = "recent-activities"
	TriggerRecentItems      Trigger = "recent-items"
	TriggerUsers            Trigger = "users"
	TriggerFullSync         Trigger = "full-sync"
	TriggerStaleSweep       Trigger = "stale-sweep"
)

// Triggers lists every trigger in arming order.
var Triggers = []Trigger{
	TriggerRecentActivities,
	TriggerRecentItems,
	TriggerUsers,
	TriggerFullSync,
	TriggerStaleSweep,
}

// ErrUnknownTrigger is returned by RunTrigger for an unknown name.
var ErrUnknownTrigger = errors.New("unknown trigger")

// jobFor maps a sync trigger to the job it enqueues.
func jobFor(t Trigger) (jobs.Name, bool) {
	switch t {
	case TriggerRecentActivities:
		return jobs.NameRecentActivitiesSync, true
	case TriggerRecentItems:
		return jobs.NameRecentItemsSync, true
	case TriggerUsers:
		return jobs.NameUsersSync, true
	case TriggerFullSync:
		return jobs.NameFullSync, true
	}
	return "", false
}

// ServerLister lists the servers to schedule syncs for.
type ServerLister interface {
	ListServers(ctx context.Context) ([]*models.Server, error)
}

// Sweeper closes the bookkeeping of stale jobs.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// Deps are the collaborators of a Scheduler. Sweeper may be nil.
type Deps struct {
	Servers ServerLister
	Jobs    jobs.Enqueuer
	Sweeper Sweeper

	// StaleLockAfter is how long a server may report syncing before the
	// scheduler enqueues for it again.
	StaleLockAfter time.Duration
}

// Update changes a subset of the scheduler configuration. Nil fields are
// left as they are.
type Update struct {
	Enabled          *bool   `json:"enabled,omitempty"`
	RecentActivities *string `json:"recent_activities,omitempty"`
	RecentItems      *string `json:"recent_items,omitempty"`
	Users            *string `json:"users,omitempty"`
	FullSync         *string `json:"full_sync,omitempty"`
	StaleSweep       *string `json:"stale_sweep,omitempty"`
}

// Status is reported by the admin API.
type Status struct {
	Enabled  bool                 `json:"enabled"`
	Running  bool                 `json:"running"`
	Triggers map[string]string    `json:"triggers"`
	Armed    []string             `json:"armed"`
	NextRun  map[string]time.Time `json:"next_run,omitempty"`
}

// FireResult summarizes one trigger execution.
type FireResult struct {
	Trigger  Trigger  `json:"trigger"`
	Enqueued int      `json:"enqueued"`
	Skipped  int      `json:"skipped"`
	Failed   int      `json:"failed"`
	Swept    int      `json:"swept,omitempty"`
	JobIDs   []string `json:"job_ids,omitempty"`
}

// Scheduler arms one cron entry per trigger.
type Scheduler struct {
	deps Deps
	now  func() time.Time

	mu      sync.Mutex
	cfg     config.SchedulerConfig
	cron    *cron.Cron
	entries map[Trigger]cron.EntryID
	running bool
	// started records that Start was requested, so UpdateConfig can re-arm
	// a scheduler that is enabled later.
	started bool
	baseCtx context.Context
}

// New creates a Scheduler. It does not arm anything until Start.
func New(cfg config.SchedulerConfig, deps Deps) *Scheduler {
	if deps.StaleLockAfter <= 0 {
		deps.StaleLockAfter = 6 * time.Hour
	}
	return &Scheduler{
		deps:    deps,
		now:     time.Now,
		cfg:     cfg,
		entries: make(map[Trigger]cron.EntryID),
	}
}

// Start arms every trigger. It is a no-op when disabled or running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	s.baseCtx = ctx
	return s.startLocked()
}

func (s *Scheduler) startLocked() error {
	if s.running || !s.cfg.Enabled {
		if !s.cfg.Enabled {
			logging.Info().Msg("Scheduler disabled")
		}
		return nil
	}

	ctx := s.baseCtx
	c := cron.New(cron.WithParser(validation.CronParser))
	entries := make(map[Trigger]cron.EntryID, len(Triggers))
	for _, t := range Triggers {
		trigger := t
		id, err := c.AddFunc(expression(s.cfg, trigger), func() {
			s.fire(ctx, trigger)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule %s: %w", trigger, err)
		}
		entries[trigger] = id
	}

	c.Start()
	s.cron = c
	s.entries = entries
	s.running = true
	logging.Info().Int("triggers", len(entries)).Msg("Scheduler started")
	return nil
}

// Stop disarms every trigger and waits for running callbacks.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.cron = nil
	s.entries = make(map[Trigger]cron.EntryID)
	logging.Info().Msg("Scheduler stopped")
}

// UpdateConfig validates and applies u. A running scheduler is re-armed
// with the new expressions.
func (s *Scheduler) UpdateConfig(u Update) error {
	for _, expr := range []*string{u.RecentActivities, u.RecentItems, u.Users, u.FullSync, u.StaleSweep} {
		if expr == nil {
			continue
		}
		if _, err := validation.CronParser.Parse(*expr); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", *expr, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if u.Enabled != nil {
		next.Enabled = *u.Enabled
	}
	assign(&next.RecentActivities, u.RecentActivities)
	assign(&next.RecentItems, u.RecentItems)
	assign(&next.Users, u.Users)
	assign(&next.FullSync, u.FullSync)
	assign(&next.StaleSweep, u.StaleSweep)

	s.stopLocked()
	s.cfg = next
	logging.Info().Bool("enabled", next.Enabled).Msg("Scheduler configuration updated")
	if s.started {
		return s.startLocked()
	}
	return nil
}

func assign(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func expression(cfg config.SchedulerConfig, t Trigger) string {
	switch t {
	case TriggerRecentActivities:
		return cfg.RecentActivities
	case TriggerRecentItems:
		return cfg.RecentItems
	case TriggerUsers:
		return cfg.Users
	case TriggerFullSync:
		return cfg.FullSync
	case TriggerStaleSweep:
		return cfg.StaleSweep
	}
	return ""
}

// GetStatus reports the configuration and the next fire time of each
// armed trigger.
func (s *Scheduler) GetStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Enabled:  s.cfg.Enabled,
		Running:  s.running,
		Triggers: make(map[string]string, len(Triggers)),
		Armed:    []string{},
	}
	for _, t := range Triggers {
		st.Triggers[string(t)] = expression(s.cfg, t)
	}
	if !s.running {
		return st
	}

	st.NextRun = make(map[string]time.Time, len(s.entries))
	for t, id := range s.entries {
		st.Armed = append(st.Armed, string(t))
		st.NextRun[string(t)] = s.cron.Entry(id).Next
	}
	sort.Strings(st.Armed)
	return st
}

// RunTrigger fires a trigger now, outside its schedule.
func (s *Scheduler) RunTrigger(ctx context.Context, name string) (*FireResult, error) {
	for _, t := range Triggers {
		if string(t) == name {
			return s.fire(ctx, t), nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTrigger, name)
}

func (s *Scheduler) fire(ctx context.Context, t Trigger) *FireResult {
	metrics.SchedulerFires.WithLabelValues(string(t)).Inc()
	res := &FireResult{Trigger: t}

	if t == TriggerStaleSweep {
		if s.deps.Sweeper == nil {
			return res
		}
		n, err := s.deps.Sweeper.Sweep(ctx, s.now())
		if err != nil {
			logging.Error().Err(err).Msg("Stale job sweep failed")
			res.Failed = 1
		}
		res.Swept = n
		return res
	}

	name, _ := jobFor(t)
	servers, err := s.deps.Servers.ListServers(ctx)
	if err != nil {
		metrics.SchedulerEnqueueErrors.WithLabelValues(string(t)).Inc()
		logging.Error().Err(err).Str("trigger", string(t)).Msg("Failed to list servers")
		res.Failed = 1
		return res
	}

	now := s.now()
	for _, srv := range servers {
		if srv.IsSyncing() && !srv.NeedsAttention(now, s.deps.StaleLockAfter) {
			res.Skipped++
			logging.Debug().Str("server_id", srv.ID).Str("trigger", string(t)).Msg("Server syncing, not enqueuing")
			continue
		}
		payload, err := jobs.ForServer(name, srv.ID)
		if err != nil {
			res.Failed++
			continue
		}
		id, err := s.deps.Jobs.Enqueue(ctx, payload)
		if err != nil {
			res.Failed++
			metrics.SchedulerEnqueueErrors.WithLabelValues(string(t)).Inc()
			logging.Error().Err(err).Str("server_id", srv.ID).Str("job_name", string(name)).Msg("Failed to enqueue job")
			continue
		}
		res.Enqueued++
		res.JobIDs = append(res.JobIDs, id)
	}

	logging.Info().
		Str("trigger", string(t)).
		Int("enqueued", res.Enqueued).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Msg("Trigger fired")
	return res
}
