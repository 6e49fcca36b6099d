// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package models

import "time"

// EntityKind names a synchronized entity table.
type EntityKind string

const (
	KindUser     EntityKind = "users"
	KindLibrary  EntityKind = "libraries"
	KindItem     EntityKind = "items"
	KindActivity EntityKind = "activities"
)

// EntityKey identifies a synchronized record. ExternalID is the id the
// media server assigned; it is only unique within one server.
type EntityKey struct {
	ServerID   string `json:"server_id"`
	ExternalID string `json:"external_id"`
}

// Entity is implemented by every record the sync engine upserts.
type Entity interface {
	Kind() EntityKind
	Key() EntityKey
}

// User is a media server account.
type User struct {
	ServerID         string     `json:"server_id"`
	ExternalID       string     `json:"external_id"`
	Name             string     `json:"name"`
	IsAdministrator  bool       `json:"is_administrator"`
	IsDisabled       bool       `json:"is_disabled"`
	LastLoginDate    *time.Time `json:"last_login_date,omitempty"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
	SyncedAt         time.Time  `json:"synced_at"`
}

func (u *User) Kind() EntityKind { return KindUser }
func (u *User) Key() EntityKey   { return EntityKey{ServerID: u.ServerID, ExternalID: u.ExternalID} }

// Library is a top-level media folder.
type Library struct {
	ServerID       string    `json:"server_id"`
	ExternalID     string    `json:"external_id"`
	Name           string    `json:"name"`
	CollectionType string    `json:"collection_type"`
	SyncedAt       time.Time `json:"synced_at"`
}

func (l *Library) Kind() EntityKind { return KindLibrary }
func (l *Library) Key() EntityKey   { return EntityKey{ServerID: l.ServerID, ExternalID: l.ExternalID} }

// Item is a media item (movie, episode, track...). Etag is the server's
// opaque change marker. Processed is set once an embedding is stored and
// is not part of change detection.
type Item struct {
	ServerID          string     `json:"server_id"`
	ExternalID        string     `json:"external_id"`
	LibraryExternalID string     `json:"library_external_id,omitempty"`
	Name              string     `json:"name"`
	Type              string     `json:"type"`
	Overview          string     `json:"overview,omitempty"`
	ProductionYear    int        `json:"production_year,omitempty"`
	CommunityRating   float64    `json:"community_rating,omitempty"`
	OfficialRating    string     `json:"official_rating,omitempty"`
	SeriesID          string     `json:"series_id,omitempty"`
	SeriesName        string     `json:"series_name,omitempty"`
	RunTimeTicks      int64      `json:"run_time_ticks"`
	Genres            []string   `json:"genres,omitempty"`
	People            []string   `json:"people,omitempty"`
	DateCreated       *time.Time `json:"date_created,omitempty"`
	Etag              string     `json:"etag,omitempty"`
	Processed         bool       `json:"processed"`
	EmbeddingModel    string     `json:"embedding_model,omitempty"`
	SyncedAt          time.Time  `json:"synced_at"`
}

func (i *Item) Kind() EntityKind { return KindItem }
func (i *Item) Key() EntityKey   { return EntityKey{ServerID: i.ServerID, ExternalID: i.ExternalID} }

// Activity is an activity log entry. ExternalID is the decimal form of
// the server's numeric entry id; Seq keeps the numeric value for ordering.
type Activity struct {
	ServerID      string    `json:"server_id"`
	ExternalID    string    `json:"external_id"`
	Seq           int64     `json:"seq"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	ShortOverview string    `json:"short_overview,omitempty"`
	Severity      string    `json:"severity"`
	UserID        string    `json:"user_id,omitempty"`
	ItemID        string    `json:"item_id,omitempty"`
	Date          time.Time `json:"date"`
	SyncedAt      time.Time `json:"synced_at"`
}

func (a *Activity) Kind() EntityKind { return KindActivity }
func (a *Activity) Key() EntityKey   { return EntityKey{ServerID: a.ServerID, ExternalID: a.ExternalID} }

var (
	_ Entity = (*User)(nil)
	_ Entity = (*Library)(nil)
	_ Entity = (*Item)(nil)
	_ Entity = (*Activity)(nil)
)
