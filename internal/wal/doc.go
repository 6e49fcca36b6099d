// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

// Package wal journals session records that failed to persist, using
// BadgerDB.
//
// The session poller keeps rejected records in an in-memory retry list.
// The Journal mirrors that list to disk so records survive a restart
// while DuckDB is unavailable:
//
//	finalize ──insert fails──▶ Journal.Append ──▶ retry list
//	retry succeeds ──▶ Journal.Remove
//	Poller.Start ──▶ Journal.Pending ──▶ retry list
//
// Entries live under the "pending:" key prefix, one per record id, so
// appending the same record twice keeps a single entry. Deleted entries
// leave garbage in BadgerDB's value log; the Compactor reclaims it on an
// interval.
//
// # Usage
//
//	j, err := wal.Open(cfg.Sessions.Journal)
//	if err != nil {
//	    return err
//	}
//	defer j.Close()
//
//	poller := sessions.NewPoller(cfg.Sessions, store, sources, sessions.WithJournal(j))
//	tree.AddDataService(wal.NewCompactor(j))
//
// An empty path opens an in-memory journal, which tests use.
package wal
