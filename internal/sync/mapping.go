// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sync

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tomtom215/mediasync/internal/models"
)

// excludedCollectionTypes are media folders that hold no content of their own.
var excludedCollectionTypes = map[string]bool{
	"boxsets":   true,
	"playlists": true,
	"livetv":    true,
	"channels":  true,
	"folders":   true,
}

// IsContentLibrary reports whether a media folder is synchronized.
func IsContentLibrary(l *models.JellyfinLibrary) bool {
	return !excludedCollectionTypes[strings.ToLower(l.CollectionType)]
}

var (
	errMissingID   = errors.New("record has no id")
	errMissingName = errors.New("record has no name")
	errMissingDate = errors.New("activity has no valid date")
)

func mapUser(serverID string, u *models.JellyfinUser) (*models.User, error) {
	if u.ID == "" {
		return nil, errMissingID
	}
	if u.Name == "" {
		return nil, errMissingName
	}
	out := &models.User{
		ServerID:         serverID,
		ExternalID:       u.ID,
		Name:             u.Name,
		LastLoginDate:    models.ParseJellyfinTimePtr(u.LastLoginDate),
		LastActivityDate: models.ParseJellyfinTimePtr(u.LastActivityDate),
	}
	if u.Policy != nil {
		out.IsAdministrator = u.Policy.IsAdministrator
		out.IsDisabled = u.Policy.IsDisabled
	}
	return out, nil
}

func mapLibrary(serverID string, l *models.JellyfinLibrary) (*models.Library, error) {
	if l.ID == "" {
		return nil, errMissingID
	}
	return &models.Library{
		ServerID:       serverID,
		ExternalID:     l.ID,
		Name:           l.Name,
		CollectionType: l.CollectionType,
	}, nil
}

// mapItem maps a BaseItemDto. libraryID is empty in recent mode.
func mapItem(serverID, libraryID string, it *models.JellyfinItem) (*models.Item, error) {
	if it.ID == "" {
		return nil, errMissingID
	}
	if it.Name == "" {
		return nil, errMissingName
	}
	var people []string
	for _, p := range it.People {
		if p.Name != "" {
			people = append(people, p.Name)
		}
	}
	return &models.Item{
		ServerID:          serverID,
		ExternalID:        it.ID,
		LibraryExternalID: libraryID,
		Name:              it.Name,
		Type:              it.Type,
		Overview:          it.Overview,
		ProductionYear:    it.ProductionYear,
		CommunityRating:   it.CommunityRating,
		OfficialRating:    it.OfficialRating,
		SeriesID:          it.SeriesID,
		SeriesName:        it.SeriesName,
		RunTimeTicks:      it.RunTimeTicks,
		Genres:            it.Genres,
		People:            people,
		DateCreated:       models.ParseJellyfinTimePtr(it.DateCreated),
		Etag:              it.Etag,
	}, nil
}

func mapActivity(serverID string, e *models.JellyfinActivityLogEntry) (*models.Activity, error) {
	if e.ID <= 0 {
		return nil, errMissingID
	}
	date, ok := models.ParseJellyfinTime(e.Date)
	if !ok {
		return nil, errMissingDate
	}
	return &models.Activity{
		ServerID:      serverID,
		ExternalID:    strconv.FormatInt(e.ID, 10),
		Seq:           e.ID,
		Name:          e.Name,
		Type:          e.Type,
		ShortOverview: e.ShortOverview,
		Severity:      e.Severity,
		UserID:        e.UserID,
		ItemID:        e.ItemID,
		Date:          date,
	}, nil
}
