package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lefei1980/travel-book-generator/internal/db"
	"github.com/lefei1980/travel-book-generator/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_trip":        `INSERT INTO trips (id, title, start_date, end_date, status, days, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"update_trip_status": `UPDATE trips SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_trip":           `SELECT id, title, start_date, end_date, status, error_message, days, enriched, created_at, updated_at FROM trips WHERE id = $1`,
	"save_enriched":      `UPDATE trips SET enriched = $1, updated_at = $2 WHERE id = $3`,
	"get_geocode_cache":  `SELECT query, latitude, longitude, display_name, source, confidence, cached_at FROM geocode_cache WHERE query = $1`,
	"put_geocode_cache":  `INSERT INTO geocode_cache (query, latitude, longitude, display_name, source, confidence, cached_at) VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (query) DO UPDATE SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude, display_name = EXCLUDED.display_name, source = EXCLUDED.source, confidence = EXCLUDED.confidence, cached_at = EXCLUDED.cached_at`,
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS trips (
	id            TEXT PRIMARY KEY,
	title         TEXT NOT NULL,
	start_date    TEXT,
	end_date      TEXT,
	status        TEXT NOT NULL DEFAULT 'pending',
	error_message TEXT,
	days          JSONB NOT NULL,
	enriched      JSONB,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS geocode_cache (
	query        TEXT PRIMARY KEY,
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	display_name TEXT,
	source       TEXT,
	confidence   TEXT,
	cached_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_trips_status ON trips(status);
CREATE INDEX IF NOT EXISTS idx_trips_created_at ON trips(created_at);
`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool exposes the underlying pool for bulk helpers.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateTrip(ctx context.Context, trip model.Trip) (*model.Trip, error) {
	trip.ID = uuid.New().String()
	trip.Status = model.TripStatusPending
	now := time.Now().UTC()
	trip.CreatedAt = now
	trip.UpdatedAt = now

	daysJSON, err := json.Marshal(trip.Days)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal days")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO trips (id, title, start_date, end_date, status, days, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		trip.ID, trip.Title, trip.StartDate, trip.EndDate, string(trip.Status), daysJSON, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert trip")
	}
	return &trip, nil
}

func (s *PostgresStore) GetTrip(ctx context.Context, tripID string) (*model.Trip, error) {
	var t model.Trip
	var errMsg *string
	var daysJSON []byte
	var enrichedJSON *[]byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, title, start_date, end_date, status, error_message, days, enriched, created_at, updated_at FROM trips WHERE id = $1`,
		tripID,
	).Scan(&t.ID, &t.Title, &t.StartDate, &t.EndDate, &t.Status, &errMsg, &daysJSON, &enrichedJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrTripNotFound, "%s", tripID)
		}
		return nil, eris.Wrapf(err, "postgres: get trip %s", tripID)
	}

	if errMsg != nil {
		t.ErrorMessage = *errMsg
	}
	if err := json.Unmarshal(daysJSON, &t.Days); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal days")
	}
	if enrichedJSON != nil {
		t.Enriched = &model.EnrichedData{}
		if err := json.Unmarshal(*enrichedJSON, t.Enriched); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal enriched data")
		}
	}
	return &t, nil
}

func (s *PostgresStore) ListTrips(ctx context.Context, filter TripFilter) ([]model.Trip, error) {
	query := `SELECT id, title, start_date, end_date, status, error_message, days, enriched, created_at, updated_at FROM trips WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list trips")
	}
	defer rows.Close()

	var trips []model.Trip
	for rows.Next() {
		var t model.Trip
		var errMsg *string
		var daysJSON []byte
		var enrichedJSON *[]byte

		if err := rows.Scan(&t.ID, &t.Title, &t.StartDate, &t.EndDate, &t.Status, &errMsg, &daysJSON, &enrichedJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan trip")
		}
		if errMsg != nil {
			t.ErrorMessage = *errMsg
		}
		if err := json.Unmarshal(daysJSON, &t.Days); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal days")
		}
		if enrichedJSON != nil {
			t.Enriched = &model.EnrichedData{}
			if err := json.Unmarshal(*enrichedJSON, t.Enriched); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal enriched data")
			}
		}
		trips = append(trips, t)
	}
	return trips, eris.Wrap(rows.Err(), "postgres: list trips iterate")
}

func (s *PostgresStore) UpdateTripStatus(ctx context.Context, tripID string, status model.TripStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trips SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), tripID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update trip status %s", tripID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTripNotFound, "%s", tripID)
	}
	return nil
}

func (s *PostgresStore) UpdateTripError(ctx context.Context, tripID string, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE trips SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
		string(model.TripStatusError), message, time.Now().UTC(), tripID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update trip error %s", tripID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTripNotFound, "%s", tripID)
	}
	return nil
}

func (s *PostgresStore) UpdateTripDays(ctx context.Context, tripID string, days []model.Day) error {
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal days")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE trips SET days = $1, updated_at = $2 WHERE id = $3`,
		daysJSON, time.Now().UTC(), tripID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update trip days %s", tripID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTripNotFound, "%s", tripID)
	}
	return nil
}

func (s *PostgresStore) SaveEnriched(ctx context.Context, tripID string, data *model.EnrichedData) error {
	enrichedJSON, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal enriched data")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE trips SET enriched = $1, updated_at = $2 WHERE id = $3`,
		enrichedJSON, time.Now().UTC(), tripID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save enriched data %s", tripID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrTripNotFound, "%s", tripID)
	}
	return nil
}

func (s *PostgresStore) GetGeocodeCache(ctx context.Context, query string) (*model.GeocodeCacheEntry, error) {
	var e model.GeocodeCacheEntry
	var displayName, source, confidence *string

	err := s.pool.QueryRow(ctx,
		`SELECT query, latitude, longitude, display_name, source, confidence, cached_at FROM geocode_cache WHERE query = $1`,
		query,
	).Scan(&e.Query, &e.Latitude, &e.Longitude, &displayName, &source, &confidence, &e.CachedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get geocode cache %q", query)
	}
	if displayName != nil {
		e.DisplayName = *displayName
	}
	if source != nil {
		e.Source = *source
	}
	if confidence != nil {
		e.Confidence = model.Confidence(*confidence)
	}
	return &e, nil
}

func (s *PostgresStore) PutGeocodeCache(ctx context.Context, entry model.GeocodeCacheEntry) error {
	if entry.CachedAt.IsZero() {
		entry.CachedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO geocode_cache (query, latitude, longitude, display_name, source, confidence, cached_at) VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (query) DO UPDATE SET latitude = EXCLUDED.latitude, longitude = EXCLUDED.longitude,
		 display_name = EXCLUDED.display_name, source = EXCLUDED.source, confidence = EXCLUDED.confidence, cached_at = EXCLUDED.cached_at`,
		entry.Query, entry.Latitude, entry.Longitude, entry.DisplayName, entry.Source, string(entry.Confidence), entry.CachedAt,
	)
	return eris.Wrapf(err, "postgres: put geocode cache %q", entry.Query)
}

// SeedGeocodeCache bulk-loads cache entries, typically coordinates carried
// in an imported spreadsheet, via a temp-table upsert.
func (s *PostgresStore) SeedGeocodeCache(ctx context.Context, entries []model.GeocodeCacheEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	rows := make([][]any, 0, len(entries))
	for _, e := range entries {
		cachedAt := e.CachedAt
		if cachedAt.IsZero() {
			cachedAt = now
		}
		rows = append(rows, []any{e.Query, e.Latitude, e.Longitude, e.DisplayName, e.Source, string(e.Confidence), cachedAt})
	}
	return db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "geocode_cache",
		Columns:      []string{"query", "latitude", "longitude", "display_name", "source", "confidence", "cached_at"},
		ConflictKeys: []string{"query"},
	}, rows)
}
