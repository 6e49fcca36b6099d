// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package wal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/mediasync/internal/config"
	"github.com/tomtom215/mediasync/internal/logging"
	"github.com/tomtom215/mediasync/internal/models"
)

const prefixPending = "pending:"

const defaultGCRatio = 0.5

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session journal is closed")

	// ErrEmptyID is returned for records without an id.
	ErrEmptyID = errors.New("session record id cannot be empty")
)

// Entry is one journaled record.
type Entry struct {
	Record        *models.SessionRecord `json:"record"`
	CreatedAt     time.Time             `json:"created_at"`
	Attempts      int                   `json:"attempts"`
	LastAttemptAt *time.Time            `json:"last_attempt_at,omitempty"`
	LastError     string                `json:"last_error,omitempty"`
}

// Journal stores session records awaiting retry in BadgerDB.
type Journal struct {
	db      *badger.DB
	gcRatio float64
	gcEvery time.Duration
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Open opens or creates the journal at cfg.Path. An empty path opens an
// in-memory journal.
func Open(cfg config.JournalConfig) (*Journal, error) {
	opts := badger.DefaultOptions(cfg.Path).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)
	if cfg.Path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open session journal: %w", err)
	}

	j := &Journal{
		db:      db,
		gcRatio: cfg.GCRatio,
		gcEvery: cfg.GCInterval,
		now:     time.Now,
	}
	if j.gcRatio <= 0 {
		j.gcRatio = defaultGCRatio
	}

	n, err := j.Len()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	journalPending.Set(float64(n))

	logging.Info().
		Str("path", cfg.Path).
		Bool("sync_writes", cfg.SyncWrites).
		Int("pending", n).
		Msg("Session journal opened")
	return j, nil
}

func (j *Journal) checkOpen() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		return ErrClosed
	}
	return nil
}

func key(id string) []byte {
	return []byte(prefixPending + id)
}

// Append journals rec. A record already in the journal keeps its entry.
func (j *Journal) Append(_ context.Context, rec *models.SessionRecord) error {
	if err := j.checkOpen(); err != nil {
		return err
	}
	if rec == nil || rec.ID == "" {
		return ErrEmptyID
	}

	start := time.Now()
	defer func() { journalWriteLatency.Observe(time.Since(start).Seconds()) }()

	added := false
	err := j.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key(rec.ID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		data, err := json.Marshal(&Entry{Record: rec, CreatedAt: j.now().UTC()})
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		added = true
		return txn.Set(key(rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("journal record %s: %w", rec.ID, err)
	}

	journalWrites.WithLabelValues("append").Inc()
	if added {
		journalPending.Inc()
	}
	return nil
}

// RecordFailure notes a failed retry of the record with the given id.
// Unknown ids are ignored.
func (j *Journal) RecordFailure(_ context.Context, id string, cause error) error {
	if err := j.checkOpen(); err != nil {
		return err
	}

	err := j.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var e Entry
		if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil {
			return fmt.Errorf("unmarshal entry: %w", err)
		}
		now := j.now().UTC()
		e.Attempts++
		e.LastAttemptAt = &now
		if cause != nil {
			e.LastError = cause.Error()
		}

		data, err := json.Marshal(&e)
		if err != nil {
			return fmt.Errorf("marshal entry: %w", err)
		}
		return txn.Set(key(id), data)
	})
	if err != nil {
		return fmt.Errorf("update journal entry %s: %w", id, err)
	}
	journalWrites.WithLabelValues("failure").Inc()
	return nil
}

// Remove deletes the record with the given id. Unknown ids are ignored.
func (j *Journal) Remove(_ context.Context, id string) error {
	if err := j.checkOpen(); err != nil {
		return err
	}

	existed := false
	err := j.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		existed = true
		return txn.Delete(key(id))
	})
	if err != nil {
		return fmt.Errorf("remove journal entry %s: %w", id, err)
	}

	journalWrites.WithLabelValues("remove").Inc()
	if existed {
		journalPending.Dec()
	}
	return nil
}

// Entries returns every journaled entry, oldest first. Entries that fail
// to decode are logged and skipped.
func (j *Journal) Entries(ctx context.Context) ([]*Entry, error) {
	if err := j.checkOpen(); err != nil {
		return nil, err
	}

	var entries []*Entry
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var e Entry
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &e) }); err != nil || e.Record == nil {
				logging.Warn().Err(err).Str("key", string(item.Key())).Msg("Skipping unreadable session journal entry")
				continue
			}
			entries = append(entries, &e)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read session journal: %w", err)
	}

	sort.SliceStable(entries, func(a, b int) bool {
		if !entries[a].CreatedAt.Equal(entries[b].CreatedAt) {
			return entries[a].CreatedAt.Before(entries[b].CreatedAt)
		}
		return entries[a].Record.ID < entries[b].Record.ID
	})
	return entries, nil
}

// Pending returns the journaled records, oldest first.
func (j *Journal) Pending(ctx context.Context) ([]*models.SessionRecord, error) {
	entries, err := j.Entries(ctx)
	if err != nil {
		return nil, err
	}
	recs := make([]*models.SessionRecord, len(entries))
	for i, e := range entries {
		recs[i] = e.Record
	}
	return recs, nil
}

// Len counts the journaled records without reading their values.
func (j *Journal) Len() (int, error) {
	n := 0
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixPending)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count session journal: %w", err)
	}
	return n, nil
}

// RunGC rewrites value log files until BadgerDB reports nothing left to
// reclaim.
func (j *Journal) RunGC() error {
	if err := j.checkOpen(); err != nil {
		return err
	}

	start := time.Now()
	defer func() { journalGCLatency.Observe(time.Since(start).Seconds()) }()

	rewritten := 0
	for {
		err := j.db.RunValueLogGC(j.gcRatio)
		switch {
		case err == nil:
			rewritten++
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrGCInMemoryMode):
			if rewritten > 0 {
				journalGCRuns.WithLabelValues("rewritten").Inc()
			} else {
				journalGCRuns.WithLabelValues("clean").Inc()
			}
			return nil
		default:
			journalGCRuns.WithLabelValues("error").Inc()
			return fmt.Errorf("session journal gc: %w", err)
		}
	}
}

// Close closes the journal. It is safe to call twice.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}
