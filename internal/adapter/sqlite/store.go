// Package sqlite persists events and subscribers in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/quake-alert-service/internal/adapter/sqlite/migrations"
	"github.com/couchcryptid/quake-alert-service/internal/domain"
)

var errNotConfigured = errors.New("storage is not configured")

// Store implements the event store and the subscriber directory.
type Store struct {
	db *sql.DB
}

// Open opens the database at path and applies pending migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CheckReadiness pings the database.
func (s *Store) CheckReadiness(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotConfigured
	}
	return s.db.PingContext(ctx)
}

// Exists reports whether an event with id has been stored.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.db == nil {
		return false, errNotConfigured
	}

	var found int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check event %s: %w", id, err)
	}
	return true, nil
}

// UpsertBatch writes events in a single transaction. A conflicting id only
// refreshes updated_at; the stored content is never overwritten.
func (s *Store) UpsertBatch(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	if err := s.upsertBatch(ctx, events); err != nil {
		return &domain.PersistFailedError{IDs: ids, Err: err}
	}
	return nil
}

func (s *Store) upsertBatch(ctx context.Context, events []domain.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errNotConfigured
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO events (
	id,
	type,
	description,
	lat,
	lon,
	depth_km,
	magnitude,
	occurred_at,
	updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		updatedAt := e.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx,
			e.ID,
			domain.EventType,
			e.Place,
			e.Coordinates.Lat,
			e.Coordinates.Lon,
			e.DepthKm,
			e.Magnitude,
			e.OccurredAtMillis(),
			updatedAt.UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("upsert event %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListSignificant returns stored events with magnitude >= minMagnitude,
// oldest first. A zero since returns the whole history.
func (s *Store) ListSignificant(ctx context.Context, minMagnitude float64, since time.Time) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errNotConfigured
	}

	var sinceMillis int64
	if !since.IsZero() {
		sinceMillis = since.UTC().UnixMilli()
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT
	id,
	description,
	lat,
	lon,
	depth_km,
	magnitude,
	occurred_at,
	updated_at
FROM events
WHERE magnitude >= ? AND occurred_at >= ?
ORDER BY occurred_at ASC, id ASC
`, minMagnitude, sinceMillis)
	if err != nil {
		return nil, fmt.Errorf("list significant events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			e                     domain.Event
			occurredAt, updatedAt int64
		)
		if err := rows.Scan(
			&e.ID,
			&e.Place,
			&e.Coordinates.Lat,
			&e.Coordinates.Lon,
			&e.DepthKm,
			&e.Magnitude,
			&occurredAt,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.OccurredAt = time.UnixMilli(occurredAt).UTC()
		e.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ListSubscribers returns a snapshot of every registered subscriber.
func (s *Store) ListSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errNotConfigured
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, alerts_enabled, token, lat, lon
FROM subscribers
ORDER BY id
`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscriber
	for rows.Next() {
		var (
			sub      domain.Subscriber
			token    sql.NullString
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&sub.ID, &sub.AlertsEnabled, &token, &lat, &lon); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		sub.DeliveryToken = token.String
		if lat.Valid && lon.Valid {
			sub.Location = &domain.Coordinate{Lat: lat.Float64, Lon: lon.Float64}
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return subs, nil
}

// ClearToken removes the delivery token of a subscriber. Clearing an absent
// token or an unknown subscriber is a no-op.
func (s *Store) ClearToken(ctx context.Context, subscriberID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errNotConfigured
	}

	_, err := s.db.ExecContext(ctx, `
UPDATE subscribers
SET token = NULL, updated_at = ?
WHERE id = ? AND token IS NOT NULL
`, time.Now().UTC().UnixMilli(), subscriberID)
	if err != nil {
		return fmt.Errorf("clear token for %s: %w", subscriberID, err)
	}
	return nil
}

// UpsertSubscriber inserts a subscriber or merges the given fields into an
// existing record.
func (s *Store) UpsertSubscriber(ctx context.Context, sub domain.Subscriber) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errNotConfigured
	}
	if strings.TrimSpace(sub.ID) == "" {
		return errors.New("subscriber id is required")
	}

	var (
		token    sql.NullString
		lat, lon sql.NullFloat64
	)
	if sub.DeliveryToken != "" {
		token = sql.NullString{String: sub.DeliveryToken, Valid: true}
	}
	if sub.Location != nil {
		lat = sql.NullFloat64{Float64: sub.Location.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: sub.Location.Lon, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO subscribers (id, alerts_enabled, token, lat, lon, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	alerts_enabled = excluded.alerts_enabled,
	token = COALESCE(excluded.token, subscribers.token),
	lat = COALESCE(excluded.lat, subscribers.lat),
	lon = COALESCE(excluded.lon, subscribers.lon),
	updated_at = excluded.updated_at
`, sub.ID, sub.AlertsEnabled, token, lat, lon, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert subscriber %s: %w", sub.ID, err)
	}
	return nil
}
