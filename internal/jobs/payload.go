// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package jobs

import (
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
)

// Name is a job name. Each name is one backlite queue.
type Name string

const (
	NameFullSync             Name = "full-sync"
	NameUsersSync            Name = "users-sync"
	NameLibrariesSync        Name = "libraries-sync"
	NameItemsSync            Name = "items-sync"
	NameActivitiesSync       Name = "activities-sync"
	NameRecentItemsSync      Name = "recent-items-sync"
	NameRecentActivitiesSync Name = "recent-activities-sync"
	NameGenerateEmbeddings   Name = "generate-item-embeddings"
)

// Names lists every job name.
var Names = []Name{
	NameFullSync,
	NameUsersSync,
	NameLibrariesSync,
	NameItemsSync,
	NameActivitiesSync,
	NameRecentItemsSync,
	NameRecentActivitiesSync,
	NameGenerateEmbeddings,
}

// ParseName validates a job name.
func ParseName(s string) (Name, error) {
	for _, n := range Names {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJob, s)
}

// JobMeta is carried by every payload. ID is assigned by Enqueue and
// reused across retries of the same job.
type JobMeta struct {
	ID         string    `json:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Meta returns the job metadata.
func (m JobMeta) Meta() JobMeta { return m }

// Payload is the closed set of job payloads. Only types in this package
// implement it; Dispatcher.Dispatch switches over all of them.
type Payload interface {
	backlite.Task
	JobName() Name
	Meta() JobMeta
	withMeta(JobMeta) Payload
	serverID() string
}

// FullSyncPayload runs users, libraries, items and activities in order.
type FullSyncPayload struct {
	JobMeta
	ServerID string `json:"server_id"`
}

func (FullSyncPayload) Config() backlite.QueueConfig { return queueConfig(NameFullSync) }
func (FullSyncPayload) JobName() Name                { return NameFullSync }
func (p FullSyncPayload) serverID() string           { return p.ServerID }
func (p FullSyncPayload) withMeta(m JobMeta) Payload {
	p.JobMeta = m
	return p
}

// UsersSyncPayload syncs users.
type UsersSyncPayload struct {
	JobMeta
	ServerID string `json:"server_id"`
}

func (UsersSyncPayload) Config() backlite.QueueConfig { return queueConfig(NameUsersSync) }
func (UsersSyncPayload) JobName() Name                { return NameUsersSync }
func (p UsersSyncPayload) serverID() string           { return p.ServerID }
func (p UsersSyncPayload) withMeta(m JobMeta) Payload {
	p.JobMeta = m
	return p
}

// LibrariesSyncPayload syncs libraries.
type LibrariesSyncPayload struct {
	JobMeta
	ServerID string `json:"server_id"`
}

func (LibrariesSyncPayload) Config() backlite.QueueConfig { return queueConfig(NameLibrariesSync) }
func (LibrariesSyncPayload) JobName() Name                { return NameLibrariesSync }
func (p LibrariesSyncPayload) serverID() string           { return p.ServerID }
func (p LibrariesSyncPayload) withMeta(m JobMeta) Payload {
	p.JobMeta = m
	return p
}

// ItemsSyncPayload syncs every item of every content library.
type ItemsSyncPayload struct {
	JobMeta
	ServerID string `json:"server_id"`
}

func (ItemsSyncPayload) Config() backlite.QueueConfig { return queueConfig(NameItemsSync) }
func (ItemsSyncPayload) JobName() Name                { return NameItemsSync }
func (p ItemsSyncPayload) serverID() string           { return p.ServerID }
func (p ItemsSyncPayload) withMeta(m JobMeta) Payload {
	p.JobMeta = m
	return p
}

// ActivitiesSyncPayload syncs the activity log without stopping at known
// entries.
type ActivitiesSyncPayload struct {
	JobMeta
	ServerID string `json:"server_id"`
}

func (ActivitiesSyncPayload) Config() backlite.QueueConfig { return queueConfig(NameActivitiesSync) }
func (ActivitiesSyncPayload) JobName() Name                { return NameActivitiesSync }
func (p ActivitiesSyncPayload) serverID() string           { return p.ServerID }
func (p ActivitiesSyncPayload) withMeta(m JobMeta) Payload {
	p.JobMeta = m
	return p
}

// RecentItemsSyncPayload syncs the most recently added items.
type RecentItemsSyncPayload struct {
	JobMeta
	ServerID string `json:"server_id"`
}

func (RecentItemsSyncPayload) Config() backlite.QueueConfig { return queueConfig(NameRecentItemsSync) }
func (RecentItemsSyncPayload) JobName() Name                { return NameRecentItemsSync }
func (p RecentItemsSyncPayload) serverID() string           { return p.ServerID }
func (p RecentItemsSyncPayload) withMeta(m JobMeta) Payload {
	p.JobMeta = m
	return p
}

// RecentActivitiesSyncPayload syncs new activity entries, stopping at the
// newest one already stored.
type RecentActivitiesSyncPayload struct {
	JobMeta
	ServerID string `json:"server_id"`
}

func (RecentActivitiesSyncPayload) Config() backlite.QueueConfig {
	return queueConfig(NameRecentActivitiesSync)
}
func (RecentActivitiesSyncPayload) JobName() Name      { return NameRecentActivitiesSync }
func (p RecentActivitiesSyncPayload) serverID() string { return p.ServerID }
func (p RecentActivitiesSyncPayload) withMeta(m JobMeta) Payload {
	p.JobMeta = m
	return p
}

// ProviderSpec selects the embedding provider for one pipeline run.
type ProviderSpec struct {
	Kind      string `json:"kind"`
	Model     string `json:"model"`
	BaseURL   string `json:"base_url"`
	BatchSize int    `json:"batch_size"`
}

// GenerateEmbeddingsPayload is one batch of the embedding pipeline. Cursor
// is the last item external id already handled; the next batch starts
// after it.
type GenerateEmbeddingsPayload struct {
	JobMeta
	ServerID      string       `json:"server_id"`
	Provider      ProviderSpec `json:"provider"`
	Cursor        string       `json:"cursor"`
	BatchSize     int          `json:"batch_size"`
	Iteration     int          `json:"iteration"`
	MaxIterations int          `json:"max_iterations"`
}

func (GenerateEmbeddingsPayload) Config() backlite.QueueConfig {
	return queueConfig(NameGenerateEmbeddings)
}
func (GenerateEmbeddingsPayload) JobName() Name      { return NameGenerateEmbeddings }
func (p GenerateEmbeddingsPayload) serverID() string { return p.ServerID }
func (p GenerateEmbeddingsPayload) withMeta(m JobMeta) Payload {
	p.JobMeta = m
	return p
}

// ShouldContinue reports whether another batch follows one that handled
// n items.
func (p GenerateEmbeddingsPayload) ShouldContinue(n int) bool {
	return n == p.BatchSize && p.Iteration+1 < p.MaxIterations
}

// Next returns the payload of the following batch. The job id is cleared
// so Enqueue assigns a new one.
func (p GenerateEmbeddingsPayload) Next(cursor string) GenerateEmbeddingsPayload {
	p.JobMeta = JobMeta{}
	p.Cursor = cursor
	p.Iteration++
	return p
}

// ForServer builds the sync payload of a job name. It fails for names that
// are not server syncs.
func ForServer(name Name, serverID string) (Payload, error) {
	switch name {
	case NameFullSync:
		return FullSyncPayload{ServerID: serverID}, nil
	case NameUsersSync:
		return UsersSyncPayload{ServerID: serverID}, nil
	case NameLibrariesSync:
		return LibrariesSyncPayload{ServerID: serverID}, nil
	case NameItemsSync:
		return ItemsSyncPayload{ServerID: serverID}, nil
	case NameActivitiesSync:
		return ActivitiesSyncPayload{ServerID: serverID}, nil
	case NameRecentItemsSync:
		return RecentItemsSyncPayload{ServerID: serverID}, nil
	case NameRecentActivitiesSync:
		return RecentActivitiesSyncPayload{ServerID: serverID}, nil
	default:
		return nil, fmt.Errorf("%w: %q is not a sync job", ErrUnknownJob, name)
	}
}
