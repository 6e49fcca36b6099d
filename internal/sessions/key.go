// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package sessions

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/tomtom215/mediasync/internal/models"
)

// keyNamespace scopes session keys so they never collide with other
// name-based UUIDs.
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("mediasync.session-key"))

// SessionKey derives the composite key of a live session. Fields are
// length-prefixed so ("ab", "c") and ("a", "bc") hash differently. An empty
// seriesID is a valid value.
func SessionKey(userID, deviceID, seriesID, itemID string) string {
	var b strings.Builder
	for _, f := range [...]string{userID, deviceID, seriesID, itemID} {
		b.WriteString(strconv.Itoa(len(f)))
		b.WriteByte(':')
		b.WriteString(f)
	}
	return uuid.NewSHA1(keyNamespace, []byte(b.String())).String()
}

// keyOf returns the key of a playable session.
func keyOf(s *models.JellyfinSession) string {
	item := s.NowPlayingItem
	return SessionKey(s.UserID, s.DeviceID, item.SeriesID, item.ID)
}

// IsPlayable drops sessions that are idle or play something that is not
// user content: trailers, extras and prerolls.
func IsPlayable(s *models.JellyfinSession) bool {
	item := s.NowPlayingItem
	switch {
	case item == nil || item.ID == "":
		return false
	case strings.EqualFold(item.Type, "Trailer"):
		return false
	case item.ExtraType != "":
		return false
	case strings.Contains(strings.ToLower(item.Path), "preroll"):
		return false
	}
	return true
}
