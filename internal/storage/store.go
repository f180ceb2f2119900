package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"
)

//go:embed migrations
var migrationsFS embed.FS

// ErrNotConfigured indicates the store was not opened.
var ErrNotConfigured = errors.New("storage: store not configured")

const (
	dialectSQLite   = "sqlite3"
	dialectPostgres = "postgres"
)

const (
	insertDataStatusSQL = `INSERT INTO data_status (
        remaining_percentage,
        remaining_data_mb,
        date_time,
        created_at
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (date_time) DO NOTHING
    RETURNING id;`

	latestDataStatusSQL = `SELECT
        id,
        remaining_percentage,
        remaining_data_mb,
        date_time,
        created_at
    FROM data_status
    ORDER BY date_time DESC
    LIMIT 1;`

	dataStatusSinceSQL = `SELECT
        id,
        remaining_percentage,
        remaining_data_mb,
        date_time,
        created_at
    FROM data_status
    WHERE date_time >= $1
    ORDER BY date_time ASC;`

	recentDataStatusSQL = `SELECT
        id,
        remaining_percentage,
        remaining_data_mb,
        date_time,
        created_at
    FROM data_status
    ORDER BY date_time DESC
    LIMIT $1;`

	countDataStatusSQL = `SELECT COUNT(*) FROM data_status;`
)

// ObservationStore defines the persistence operations the core consumes.
type ObservationStore interface {
	InsertDataStatus(ctx context.Context, percent, mb int, at time.Time) (int64, bool, error)
	LatestDataStatus(ctx context.Context) (*Observation, error)
	DataStatusSince(ctx context.Context, since time.Time) ([]Observation, error)
	RecentDataStatus(ctx context.Context, limit int) ([]Observation, error)
	CountDataStatus(ctx context.Context) (int64, error)
}

// Store is the durable observation store. The default backend is a sqlite
// file; a postgres DSN in DATABASE_URL selects the pgx driver instead.
type Store struct {
	db       *sql.DB
	dialect  string
	location string
}

// Open connects to the backend selected by location, bounds the pool, and
// applies pending schema migrations.
func Open(ctx context.Context, location string, maxOpenConns int, logger zerolog.Logger) (*Store, error) {
	if location == "" {
		return nil, errors.New("storage: location is required")
	}

	dialect := dialectSQLite
	driver := "sqlite3"
	dsn := location
	if strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://") {
		dialect = dialectPostgres
		driver = "pgx"
	} else {
		dsn = location + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_foreign_keys=on"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", dialect, err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	s := &Store{db: db, dialect: dialect, location: location}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug().Str("component", "storage").Str("dialect", dialect).Str("location", location).Msg("store ready")
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	defer goose.SetBaseFS(nil)

	if err := goose.SetDialect(s.dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations/"+s.dialect); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Location reports the opened store location for diagnostics.
func (s *Store) Location() string {
	if s == nil {
		return ""
	}
	return s.location
}

var placeholderPattern = regexp.MustCompile(`\$\d+`)

// rebind rewrites $N placeholders for the sqlite driver. Parameters are
// never repeated or reordered in this package, so positional ? is enough.
func (s *Store) rebind(query string) string {
	if s.dialect == dialectPostgres {
		return query
	}
	return placeholderPattern.ReplaceAllString(query, "?")
}

// InsertDataStatus inserts one observation unless a row with the same
// date_time already exists. It reports the row id and whether a row was
// actually written; a conflict is success with inserted=false.
func (s *Store) InsertDataStatus(ctx context.Context, percent, mb int, at time.Time) (int64, bool, error) {
	if s == nil || s.db == nil {
		return 0, false, ErrNotConfigured
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(insertDataStatusSQL),
		percent,
		mb,
		encodeTime(at),
		encodeTime(time.Now()),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("insert data status: %w", err)
	}
	return id, true, nil
}

// LatestDataStatus returns the observation with the maximum date_time, or
// nil when the store is empty.
func (s *Store) LatestDataStatus(ctx context.Context) (*Observation, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	row := s.db.QueryRowContext(ctx, latestDataStatusSQL)
	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest data status: %w", err)
	}
	return &obs, nil
}

// DataStatusSince lists observations at or after since, ascending.
func (s *Store) DataStatusSince(ctx context.Context, since time.Time) ([]Observation, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(dataStatusSinceSQL), encodeTime(since))
	if err != nil {
		return nil, fmt.Errorf("data status since: %w", err)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// RecentDataStatus lists the newest observations, descending.
func (s *Store) RecentDataStatus(ctx context.Context, limit int) ([]Observation, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(recentDataStatusSQL), limit)
	if err != nil {
		return nil, fmt.Errorf("recent data status: %w", err)
	}
	defer rows.Close()

	return collectObservations(rows)
}

// CountDataStatus counts stored observations.
func (s *Store) CountDataStatus(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrNotConfigured
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, countDataStatusSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count data status: %w", err)
	}
	return count, nil
}

// encodeTime canonicalises timestamps to RFC3339 UTC text. A single fixed
// format keeps lexicographic and chronological order identical, which the
// date_time ORDER BY clauses rely on.
func encodeTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (Observation, error) {
	var (
		obs          Observation
		dateTimeStr  string
		createdAtStr string
	)
	if err := row.Scan(
		&obs.ID,
		&obs.RemainingPercentage,
		&obs.RemainingDataMB,
		&dateTimeStr,
		&createdAtStr,
	); err != nil {
		return Observation{}, err
	}

	var err error
	obs.DateTime, err = decodeTime(dateTimeStr)
	if err != nil {
		return Observation{}, fmt.Errorf("parse date_time: %w", err)
	}
	obs.CreatedAt, err = decodeTime(createdAtStr)
	if err != nil {
		return Observation{}, fmt.Errorf("parse created_at: %w", err)
	}
	return obs, nil
}

func collectObservations(rows *sql.Rows) ([]Observation, error) {
	out := make([]Observation, 0)
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

var _ ObservationStore = (*Store)(nil)
