// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package models

import (
	"strings"
	"time"
)

// ============================================================================
// Jellyfin REST API DTOs
// ============================================================================
// Field names follow the PascalCase JSON emitted by Jellyfin 10.x.
// Durations and positions are ticks (100ns units). Dates are ISO-8601
// strings and are parsed lazily with ParseJellyfinTime because Jellyfin
// omits the zone designator on some endpoints.

// TicksPerSecond converts Jellyfin ticks to seconds.
const TicksPerSecond = 10_000_000

// JellyfinSystemInfo is returned by /System/Info.
type JellyfinSystemInfo struct {
	ID         string `json:"Id"`
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
}

// JellyfinUser is an element of /Users.
type JellyfinUser struct {
	ID               string              `json:"Id"`
	Name             string              `json:"Name"`
	ServerID         string              `json:"ServerId,omitempty"`
	LastLoginDate    string              `json:"LastLoginDate,omitempty"`
	LastActivityDate string              `json:"LastActivityDate,omitempty"`
	Policy           *JellyfinUserPolicy `json:"Policy,omitempty"`
}

// JellyfinUserPolicy holds the account flags MediaSync tracks.
type JellyfinUserPolicy struct {
	IsAdministrator bool `json:"IsAdministrator"`
	IsDisabled      bool `json:"IsDisabled"`
}

// JellyfinLibrary is a media folder from /Library/MediaFolders.
type JellyfinLibrary struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	CollectionType string `json:"CollectionType,omitempty"` // movies, tvshows, music, boxsets...
	Type           string `json:"Type,omitempty"`
}

// JellyfinLibrariesResponse wraps /Library/MediaFolders.
type JellyfinLibrariesResponse struct {
	Items            []JellyfinLibrary `json:"Items"`
	TotalRecordCount int               `json:"TotalRecordCount"`
}

// JellyfinPerson is a cast or crew credit.
type JellyfinPerson struct {
	Name string `json:"Name"`
	Role string `json:"Role,omitempty"`
	Type string `json:"Type,omitempty"` // Actor, Director, Writer...
}

// JellyfinItem is a BaseItemDto from /Items.
type JellyfinItem struct {
	ID              string           `json:"Id"`
	Name            string           `json:"Name"`
	Type            string           `json:"Type"`
	ParentID        string           `json:"ParentId,omitempty"`
	Overview        string           `json:"Overview,omitempty"`
	ProductionYear  int              `json:"ProductionYear,omitempty"`
	CommunityRating float64          `json:"CommunityRating,omitempty"`
	OfficialRating  string           `json:"OfficialRating,omitempty"`
	SeriesID        string           `json:"SeriesId,omitempty"`
	SeriesName      string           `json:"SeriesName,omitempty"`
	RunTimeTicks    int64            `json:"RunTimeTicks,omitempty"`
	Genres          []string         `json:"Genres,omitempty"`
	People          []JellyfinPerson `json:"People,omitempty"`
	DateCreated     string           `json:"DateCreated,omitempty"`
	Etag            string           `json:"Etag,omitempty"`
}

// JellyfinItemsResponse is one page of /Items.
type JellyfinItemsResponse struct {
	Items            []JellyfinItem `json:"Items"`
	TotalRecordCount int            `json:"TotalRecordCount"`
	StartIndex       int            `json:"StartIndex"`
}

// JellyfinActivityLogEntry is an element of /System/ActivityLog/Entries.
type JellyfinActivityLogEntry struct {
	ID            int64  `json:"Id"`
	Name          string `json:"Name"`
	Overview      string `json:"Overview,omitempty"`
	ShortOverview string `json:"ShortOverview,omitempty"`
	Type          string `json:"Type"`
	ItemID        string `json:"ItemId,omitempty"`
	UserID        string `json:"UserId,omitempty"`
	Date          string `json:"Date"`
	Severity      string `json:"Severity"`
}

// JellyfinActivityLogResponse is one page of the activity log, newest first.
type JellyfinActivityLogResponse struct {
	Items            []JellyfinActivityLogEntry `json:"Items"`
	TotalRecordCount int                        `json:"TotalRecordCount"`
	StartIndex       int                        `json:"StartIndex"`
}

// JellyfinSession is an element of /Sessions.
type JellyfinSession struct {
	ID               string                   `json:"Id"`
	Client           string                   `json:"Client"`
	DeviceID         string                   `json:"DeviceId"`
	DeviceName       string                   `json:"DeviceName"`
	DeviceType       string                   `json:"DeviceType,omitempty"`
	UserID           string                   `json:"UserId"`
	UserName         string                   `json:"UserName"`
	RemoteEndPoint   string                   `json:"RemoteEndPoint,omitempty"`
	LastActivityDate string                   `json:"LastActivityDate,omitempty"`
	LastPausedDate   string                   `json:"LastPausedDate,omitempty"`
	NowPlayingItem   *JellyfinNowPlayingItem  `json:"NowPlayingItem,omitempty"`
	PlayState        *JellyfinPlayState       `json:"PlayState,omitempty"`
	TranscodingInfo  *JellyfinTranscodingInfo `json:"TranscodingInfo,omitempty"`
	ServerID         string                   `json:"ServerId,omitempty"`
}

// JellyfinNowPlayingItem is the item a session is playing.
type JellyfinNowPlayingItem struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	Type           string `json:"Type"` // Movie, Episode, Audio, Trailer...
	MediaType      string `json:"MediaType,omitempty"`
	SeriesID       string `json:"SeriesId,omitempty"`
	SeriesName     string `json:"SeriesName,omitempty"`
	RunTimeTicks   int64  `json:"RunTimeTicks"`
	ProductionYear int    `json:"ProductionYear,omitempty"`
	ExtraType      string `json:"ExtraType,omitempty"` // set for trailers, featurettes...
	Path           string `json:"Path,omitempty"`
}

// JellyfinPlayState is the playback state of a session.
type JellyfinPlayState struct {
	PositionTicks int64  `json:"PositionTicks"`
	IsPaused      bool   `json:"IsPaused"`
	IsMuted       bool   `json:"IsMuted,omitempty"`
	PlayMethod    string `json:"PlayMethod,omitempty"` // DirectPlay, DirectStream, Transcode
}

// JellyfinTranscodingInfo is present while the server transcodes.
type JellyfinTranscodingInfo struct {
	AudioCodec               string   `json:"AudioCodec,omitempty"`
	VideoCodec               string   `json:"VideoCodec,omitempty"`
	Container                string   `json:"Container,omitempty"`
	IsVideoDirect            bool     `json:"IsVideoDirect"`
	IsAudioDirect            bool     `json:"IsAudioDirect"`
	Bitrate                  int      `json:"Bitrate,omitempty"`
	HardwareAccelerationType string   `json:"HardwareAccelerationType,omitempty"`
	TranscodeReasons         []string `json:"TranscodeReasons,omitempty"`
}

// IsTranscoding reports whether video or audio is being transcoded.
func (s *JellyfinSession) IsTranscoding() bool {
	if s.TranscodingInfo == nil {
		return false
	}
	return !s.TranscodingInfo.IsVideoDirect || !s.TranscodingInfo.IsAudioDirect
}

// IsPaused is false when no play state was reported.
func (s *JellyfinSession) IsPaused() bool {
	return s.PlayState != nil && s.PlayState.IsPaused
}

// PositionTicks is 0 when no play state was reported.
func (s *JellyfinSession) PositionTicks() int64 {
	if s.PlayState == nil {
		return 0
	}
	return s.PlayState.PositionTicks
}

// PlayMethod returns the reported play method, or "".
func (s *JellyfinSession) PlayMethod() string {
	if s.PlayState == nil {
		return ""
	}
	return s.PlayState.PlayMethod
}

var jellyfinTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
}

// ParseJellyfinTime parses a Jellyfin date. Values without a zone are UTC.
// The zero time "0001-01-01T00:00:00" and unparsable input report false.
func ParseJellyfinTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range jellyfinTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() <= 1 {
				return time.Time{}, false
			}
			return NormalizeTime(t), true
		}
	}
	return time.Time{}, false
}

// ParseJellyfinTimePtr is ParseJellyfinTime returning nil for absent values.
func ParseJellyfinTimePtr(s string) *time.Time {
	t, ok := ParseJellyfinTime(s)
	if !ok {
		return nil
	}
	return &t
}
