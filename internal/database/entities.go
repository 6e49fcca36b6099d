// MediaSync - Media Server Metadata and Session Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mediasync

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mediasync/internal/models"
)

// Upsert inserts the entity or overwrites the existing row with the same
// (server_id, external_id). An updated item loses its embedding so the
// pipeline picks it up again.
func (db *DB) Upsert(ctx context.Context, e models.Entity) error {
	var err error
	switch v := e.(type) {
	case *models.User:
		err = db.upsertUser(ctx, v)
	case *models.Library:
		err = db.upsertLibrary(ctx, v)
	case *models.Item:
		err = db.upsertItem(ctx, v)
	case *models.Activity:
		err = db.upsertActivity(ctx, v)
	default:
		return fmt.Errorf("%w: %T", ErrUnsupportedKind, e)
	}
	if err != nil {
		k := e.Key()
		return fmt.Errorf("failed to upsert %s %s/%s: %w", e.Kind(), k.ServerID, k.ExternalID, err)
	}
	return nil
}

func syncedAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func (db *DB) upsertUser(ctx context.Context, u *models.User) error {
	_, err := db.exec(ctx, "UPSERT", "users", `
		INSERT INTO users (server_id, external_id, name, is_administrator, is_disabled,
			last_login_date, last_activity_date, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (server_id, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			is_administrator = EXCLUDED.is_administrator,
			is_disabled = EXCLUDED.is_disabled,
			last_login_date = EXCLUDED.last_login_date,
			last_activity_date = EXCLUDED.last_activity_date,
			synced_at = EXCLUDED.synced_at`,
		u.ServerID, u.ExternalID, u.Name, u.IsAdministrator, u.IsDisabled,
		nullTime(u.LastLoginDate), nullTime(u.LastActivityDate), syncedAt(u.SyncedAt))
	return err
}

func (db *DB) upsertLibrary(ctx context.Context, l *models.Library) error {
	_, err := db.exec(ctx, "UPSERT", "libraries", `
		INSERT INTO libraries (server_id, external_id, name, collection_type, synced_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (server_id, external_id) DO UPDATE SET
			name = EXCLUDED.name,
			collection_type = EXCLUDED.collection_type,
			synced_at = EXCLUDED.synced_at`,
		l.ServerID, l.ExternalID, l.Name, nullString(l.CollectionType), syncedAt(l.SyncedAt))
	return err
}

func (db *DB) upsertItem(ctx context.Context, i *models.Item) error {
	genres, err := encodeStrings(i.Genres)
	if err != nil {
		return err
	}
	people, err := encodeStrings(i.People)
	if err != nil {
		return err
	}
	_, err = db.exec(ctx, "UPSERT", "items", `
		INSERT INTO items (server_id, external_id, library_external_id, name, type, overview,
			production_year, community_rating, official_rating, series_id, series_name,
			run_time_ticks, genres, people, date_created, etag, processed, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false, ?)
		ON CONFLICT (server_id, external_id) DO UPDATE SET
			library_external_id = EXCLUDED.library_external_id,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			overview = EXCLUDED.overview,
			production_year = EXCLUDED.production_year,
			community_rating = EXCLUDED.community_rating,
			official_rating = EXCLUDED.official_rating,
			series_id = EXCLUDED.series_id,
			series_name = EXCLUDED.series_name,
			run_time_ticks = EXCLUDED.run_time_ticks,
			genres = EXCLUDED.genres,
			people = EXCLUDED.people,
			date_created = EXCLUDED.date_created,
			etag = EXCLUDED.etag,
			processed = false,
			embedding = NULL,
			embedding_model = NULL,
			synced_at = EXCLUDED.synced_at`,
		i.ServerID, i.ExternalID, nullString(i.LibraryExternalID), i.Name, nullString(i.Type), nullString(i.Overview),
		i.ProductionYear, i.CommunityRating, nullString(i.OfficialRating), nullString(i.SeriesID), nullString(i.SeriesName),
		i.RunTimeTicks, genres, people, nullTime(i.DateCreated), nullString(i.Etag), syncedAt(i.SyncedAt))
	return err
}

func (db *DB) upsertActivity(ctx context.Context, a *models.Activity) error {
	_, err := db.exec(ctx, "UPSERT", "activities", `
		INSERT INTO activities (server_id, external_id, seq, name, type, short_overview,
			severity, user_id, item_id, date, synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (server_id, external_id) DO UPDATE SET
			seq = EXCLUDED.seq,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			short_overview = EXCLUDED.short_overview,
			severity = EXCLUDED.severity,
			user_id = EXCLUDED.user_id,
			item_id = EXCLUDED.item_id,
			date = EXCLUDED.date,
			synced_at = EXCLUDED.synced_at`,
		a.ServerID, a.ExternalID, a.Seq, a.Name, nullString(a.Type), nullString(a.ShortOverview),
		nullString(a.Severity), nullString(a.UserID), nullString(a.ItemID), a.Date.UTC(), syncedAt(a.SyncedAt))
	return err
}

// FindOne returns the stored entity of the given kind and key, or ErrNotFound.
func (db *DB) FindOne(ctx context.Context, kind models.EntityKind, key models.EntityKey) (models.Entity, error) {
	var (
		e   models.Entity
		err error
	)
	switch kind {
	case models.KindUser:
		e, err = scanUser(db.conn.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE server_id = ? AND external_id = ?`, key.ServerID, key.ExternalID))
	case models.KindLibrary:
		e, err = scanLibrary(db.conn.QueryRowContext(ctx,
			`SELECT `+libraryColumns+` FROM libraries WHERE server_id = ? AND external_id = ?`, key.ServerID, key.ExternalID))
	case models.KindItem:
		e, err = scanItem(db.conn.QueryRowContext(ctx,
			`SELECT `+itemColumns+` FROM items WHERE server_id = ? AND external_id = ?`, key.ServerID, key.ExternalID))
	case models.KindActivity:
		e, err = scanActivity(db.conn.QueryRowContext(ctx,
			`SELECT `+activityColumns+` FROM activities WHERE server_id = ? AND external_id = ?`, key.ServerID, key.ExternalID))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s %s/%s: %w", kind, key.ServerID, key.ExternalID, err)
	}
	return e, nil
}

// ListUnprocessed returns up to limit records of kind that still await an
// embedding, ordered by external_id and strictly after afterExternalID.
// Only items carry embedding state.
func (db *DB) ListUnprocessed(ctx context.Context, kind models.EntityKind, serverID, afterExternalID string, limit int) ([]models.Entity, error) {
	if kind != models.KindItem {
		return nil, fmt.Errorf("%w: %s has no embedding state", ErrUnsupportedKind, kind)
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE server_id = ? AND processed = false AND external_id > ?
		ORDER BY external_id
		LIMIT ?`, serverID, afterExternalID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed items: %w", err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// LatestActivity returns the newest stored activity for a server, or ErrNotFound.
func (db *DB) LatestActivity(ctx context.Context, serverID string) (*models.Activity, error) {
	a, err := scanActivity(db.conn.QueryRowContext(ctx,
		`SELECT `+activityColumns+` FROM activities WHERE server_id = ? ORDER BY seq DESC LIMIT 1`, serverID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest activity: %w", err)
	}
	return a, nil
}

// CountEntities returns the number of stored rows of kind for a server.
func (db *DB) CountEntities(ctx context.Context, kind models.EntityKind, serverID string) (int, error) {
	table, ok := entityTables[kind]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE server_id = ?`, serverID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// SaveItemEmbedding stores a vector and marks the item processed.
func (db *DB) SaveItemEmbedding(ctx context.Context, key models.EntityKey, vector []float32, model string) error {
	literal := vectorLiteral(vector)
	res, err := db.exec(ctx, "UPDATE", "items", `
		UPDATE items SET embedding = CAST(? AS FLOAT[]), embedding_model = ?, processed = true
		WHERE server_id = ? AND external_id = ?`,
		literal, model, key.ServerID, key.ExternalID)
	if err != nil {
		return fmt.Errorf("failed to save embedding for %s/%s: %w", key.ServerID, key.ExternalID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetItemEmbedding returns the stored vector of an item, or ErrNotFound
// when the item does not exist or has no embedding.
func (db *DB) GetItemEmbedding(ctx context.Context, key models.EntityKey) ([]float32, error) {
	var raw sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT CAST(embedding AS VARCHAR) FROM items WHERE server_id = ? AND external_id = ?`,
		key.ServerID, key.ExternalID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !raw.Valid) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load embedding: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal([]byte(raw.String), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode embedding: %w", err)
	}
	return vec, nil
}

var entityTables = map[models.EntityKind]string{
	models.KindUser:     "users",
	models.KindLibrary:  "libraries",
	models.KindItem:     "items",
	models.KindActivity: "activities",
}

const userColumns = `server_id, external_id, name, is_administrator, is_disabled,
	last_login_date, last_activity_date, synced_at`

const libraryColumns = `server_id, external_id, name, collection_type, synced_at`

const itemColumns = `server_id, external_id, library_external_id, name, type, overview,
	production_year, community_rating, official_rating, series_id, series_name,
	run_time_ticks, genres, people, date_created, etag, processed, embedding_model, synced_at`

const activityColumns = `server_id, external_id, seq, name, type, short_overview,
	severity, user_id, item_id, date, synced_at`

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var login, lastActive sql.NullTime
	if err := row.Scan(&u.ServerID, &u.ExternalID, &u.Name, &u.IsAdministrator, &u.IsDisabled,
		&login, &lastActive, &u.SyncedAt); err != nil {
		return nil, err
	}
	u.LastLoginDate = timePtr(login)
	u.LastActivityDate = timePtr(lastActive)
	u.SyncedAt = u.SyncedAt.UTC()
	return &u, nil
}

func scanLibrary(row rowScanner) (*models.Library, error) {
	var l models.Library
	var ct sql.NullString
	if err := row.Scan(&l.ServerID, &l.ExternalID, &l.Name, &ct, &l.SyncedAt); err != nil {
		return nil, err
	}
	l.CollectionType = ct.String
	l.SyncedAt = l.SyncedAt.UTC()
	return &l, nil
}

func scanItem(row rowScanner) (*models.Item, error) {
	var i models.Item
	var lib, typ, overview, rating, seriesID, seriesName sql.NullString
	var genres, people, etag, embModel sql.NullString
	var year, ticks sql.NullInt64
	var community sql.NullFloat64
	var created sql.NullTime
	if err := row.Scan(&i.ServerID, &i.ExternalID, &lib, &i.Name, &typ, &overview,
		&year, &community, &rating, &seriesID, &seriesName,
		&ticks, &genres, &people, &created, &etag, &i.Processed, &embModel, &i.SyncedAt); err != nil {
		return nil, err
	}
	i.LibraryExternalID = lib.String
	i.Type = typ.String
	i.Overview = overview.String
	i.ProductionYear = int(year.Int64)
	i.CommunityRating = community.Float64
	i.OfficialRating = rating.String
	i.SeriesID = seriesID.String
	i.SeriesName = seriesName.String
	i.RunTimeTicks = ticks.Int64
	i.DateCreated = timePtr(created)
	i.Etag = etag.String
	i.EmbeddingModel = embModel.String
	i.SyncedAt = i.SyncedAt.UTC()

	var err error
	if i.Genres, err = decodeStrings(genres); err != nil {
		return nil, err
	}
	if i.People, err = decodeStrings(people); err != nil {
		return nil, err
	}
	return &i, nil
}

func scanActivity(row rowScanner) (*models.Activity, error) {
	var a models.Activity
	var typ, overview, severity, user, item sql.NullString
	if err := row.Scan(&a.ServerID, &a.ExternalID, &a.Seq, &a.Name, &typ, &overview,
		&severity, &user, &item, &a.Date, &a.SyncedAt); err != nil {
		return nil, err
	}
	a.Type = typ.String
	a.ShortOverview = overview.String
	a.Severity = severity.String
	a.UserID = user.String
	a.ItemID = item.String
	a.Date = a.Date.UTC()
	a.SyncedAt = a.SyncedAt.UTC()
	return &a, nil
}

func encodeStrings(v []string) (sql.NullString, error) {
	if len(v) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode list: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeStrings(ns sql.NullString) ([]string, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(ns.String), &out); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return out, nil
}

// vectorLiteral renders a vector as a DuckDB list literal, e.g. [0.5, -1].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 10)
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
