package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lefei1980/travel-book-generator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	start_date    TEXT,
	end_date      TEXT,
	status        TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT,
	days          TEXT NOT NULL,
	enriched      TEXT,
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	query        TEXT PRIMARY KEY,
	latitude     REAL NOT NULL,
	longitude    REAL NOT NULL,
	display_name TEXT,
	source       TEXT,
	confidence   TEXT,
	cached_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_trips_status ON trips(status);
CREATE INDEX IF NOT EXISTS idx_trips_created_at ON trips(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateTrip(ctx context.Context, trip model.Trip) (*model.Trip, error) {
	trip.ID = uuid.New().String()
	trip.Status = model.TripStatusPending
	now := time.Now().UTC()
	trip.CreatedAt = now
	trip.UpdatedAt = now

	daysJSON, err := json.Marshal(trip.Days)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal days")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trips (id, title, start_date, end_date, status, days, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		trip.ID, trip.Title, trip.StartDate, trip.EndDate, string(trip.Status), string(daysJSON), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert trip")
	}
	return &trip, nil
}

func (s *SQLiteStore) GetTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, start_date, end_date, status, error_message, days, enriched, created_at, updated_at FROM trips WHERE id = ?`,
		tripID,
	)
	return scanTrip(row)
}

func (s *SQLiteStore) ListTrips(ctx context.Context, filter TripFilter) ([]model.Trip, error) {
	query := `SELECT id, title, start_date, end_date, status, error_message, days, enriched, created_at, updated_at FROM trips WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list trips")
	}
	defer rows.Close()

	var trips []model.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}
		trips = append(trips, *trip)
	}
	return trips, eris.Wrap(rows.Err(), "sqlite: list trips iterate")
}

func (s *SQLiteStore) UpdateTripStatus(ctx context.Context, tripID string, status model.TripStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), tripID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update trip status %s", tripID)
	}
	return checkRowsAffected(res, "trip", tripID)
}

func (s *SQLiteStore) UpdateTripError(ctx context.Context, tripID string, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(model.TripStatusError), message, time.Now().UTC(), tripID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update trip error %s", tripID)
	}
	return checkRowsAffected(res, "trip", tripID)
}

func (s *SQLiteStore) UpdateTripDays(ctx context.Context, tripID string, days []model.Day) error {
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal days")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET days = ?, updated_at = ? WHERE id = ?`,
		string(daysJSON), time.Now().UTC(), tripID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update trip days %s", tripID)
	}
	return checkRowsAffected(res, "trip", tripID)
}

func (s *SQLiteStore) SaveEnriched(ctx context.Context, tripID string, data *model.EnrichedData) error {
	enrichedJSON, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal enriched data")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE trips SET enriched = ?, updated_at = ? WHERE id = ?`,
		string(enrichedJSON), time.Now().UTC(), tripID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save enriched data %s", tripID)
	}
	return checkRowsAffected(res, "trip", tripID)
}

func (s *SQLiteStore) GetGeocodeCache(ctx context.Context, query string) (*model.GeocodeCacheEntry, error) {
	var e model.GeocodeCacheEntry
	var displayName, source, confidence sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT query, latitude, longitude, display_name, source, confidence, cached_at FROM geocode_cache WHERE query = ?`,
		query,
	).Scan(&e.Query, &e.Latitude, &e.Longitude, &displayName, &source, &confidence, &e.CachedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get geocode cache %q", query)
	}
	e.DisplayName = displayName.String
	e.Source = source.String
	e.Confidence = model.Confidence(confidence.String)
	return &e, nil
}

func (s *SQLiteStore) PutGeocodeCache(ctx context.Context, entry model.GeocodeCacheEntry) error {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO geocode_cache (query, latitude, longitude, display_name, source, confidence, cached_at) VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(query) DO UPDATE SET latitude = excluded.latitude, longitude = excluded.longitude,
		 display_name = excluded.display_name, source = excluded.source, confidence = excluded.confidence, cached_at = excluded.cached_at`,
		entry.Query, entry.Latitude, entry.Longitude, entry.DisplayName, entry.Source, string(entry.Confidence), entry.CachedAt,
	)
	return eris.Wrapf(err, "sqlite: put geocode cache %q", entry.Query)
}

func (s *SQLiteStore) SeedGeocodeCache(ctx context.Context, entries []model.GeocodeCacheEntry) (int64, error) {
	var n int64
	for _, e := range entries {
		if err := s.PutGeocodeCache(ctx, e); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrip(row rowScanner) (*model.Trip, error) {
	var t model.Trip
	var errMsg sql.NullString
	var daysJSON string
	var enrichedJSON sql.NullString

	err := row.Scan(&t.ID, &t.Title, &t.StartDate, &t.EndDate, &t.Status, &errMsg, &daysJSON, &enrichedJSON, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTripNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan trip")
	}

	t.ErrorMessage = errMsg.String
	if err := json.Unmarshal([]byte(daysJSON), &t.Days); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal days")
	}
	if enrichedJSON.Valid && enrichedJSON.String != "" {
		t.Enriched = &model.EnrichedData{}
		if err := json.Unmarshal([]byte(enrichedJSON.String), t.Enriched); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal enriched data")
		}
	}
	return &t, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrTripNotFound, "%s: %s", kind, id)
	}
	return nil
}
