// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

/*
Package sync reconciles media server metadata into the local store.

Four entity modules share one algorithm: page through the remote API, map
each DTO to its model, and classify it against the stored record as
inserted, updated or unchanged. Per-record failures are collected and do
not stop the module; a failed page fetch does.

	users      GET /Users
	libraries  GET /Library/MediaFolders
	items      GET /Items (per library, or newest-first in recent mode)
	activities GET /System/ActivityLog/Entries (newest first)

FullSync runs the four in that order and records the stage on the server
row before each one. The Orchestrator wraps every run in the server's
sync lock, a single conditional UPDATE in the database package.

All remote calls go through Client, which applies a token-bucket rate
limit, retries 429/5xx/network failures with exponential backoff, and is
wrapped by a circuit breaker per server.
*/
package sync
