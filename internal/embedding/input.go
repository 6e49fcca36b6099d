// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/tomtom215/mediasync/internal/models"
)

// maxPeople bounds how many cast and crew names go into an input.
const maxPeople = 10

// BuildInput renders the descriptive fields of an item as one embedding
// input of at most maxChars runes. A maxChars of zero or less disables the
// cap.
func BuildInput(it *models.Item, maxChars int) string {
	var b strings.Builder
	line := func(label, value string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		if label != "" {
			b.WriteString(label)
			b.WriteString(": ")
		}
		b.WriteString(value)
	}

	line("", it.Name)
	line("Type", it.Type)
	if it.ProductionYear > 0 {
		line("Year", strconv.Itoa(it.ProductionYear))
	}
	line("Rating", it.OfficialRating)
	if it.CommunityRating > 0 {
		line("Community rating", strconv.FormatFloat(it.CommunityRating, 'f', 1, 64))
	}
	line("Genres", strings.Join(it.Genres, ", "))
	people := it.People
	if len(people) > maxPeople {
		people = people[:maxPeople]
	}
	line("People", strings.Join(people, ", "))
	line("Series", it.SeriesName)
	line("Overview", it.Overview)

	return truncateRunes(b.String(), maxChars)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// CacheKey identifies a vector by the model and the exact input.
func CacheKey(model, input string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + input))
	return hex.EncodeToString(sum[:])
}

// Normalize returns vec resized to dim components: zero-padded when
// shorter, truncated when longer. The input is never modified.
func Normalize(vec []float32, dim int) []float32 {
	out := make([]float32, dim)
	copy(out, vec)
	return out
}
