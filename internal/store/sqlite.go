package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no record exists for the requested id.
var ErrNotFound = errors.New("store: record not found")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at path. An empty
// path selects an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite works best with a single writer connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS subscribers(
		id TEXT PRIMARY KEY,
		endpoint_url TEXT NOT NULL,
		events TEXT NOT NULL,
		secret TEXT NOT NULL,
		active BOOLEAN NOT NULL,
		created_at TIMESTAMP NOT NULL,
		last_delivered_at TIMESTAMP NULL,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("failed to ensure subscribers schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec Record) error {
	events, err := json.Marshal(rec.Events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO subscribers
		(id, endpoint_url, events, secret, active, created_at, last_delivered_at, success_count, failure_count)
		VALUES(?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			endpoint_url=excluded.endpoint_url,
			events=excluded.events,
			secret=excluded.secret,
			active=excluded.active,
			last_delivered_at=excluded.last_delivered_at,
			success_count=excluded.success_count,
			failure_count=excluded.failure_count`,
		rec.ID, rec.EndpointURL, string(events), rec.Secret, rec.Active,
		rec.CreatedAt.UTC(), nullableTime(rec.LastDeliveredAt), rec.SuccessCount, rec.FailureCount)
	if err != nil {
		return fmt.Errorf("failed to save subscriber %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, endpoint_url, events, secret, active,
		created_at, last_delivered_at, success_count, failure_count
		FROM subscribers WHERE id = ?`, id)
	return scanRecord(row)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, endpoint_url, events, secret, active,
		created_at, last_delivered_at, success_count, failure_count
		FROM subscribers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec       Record
		events    string
		delivered sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.EndpointURL, &events, &rec.Secret, &rec.Active,
		&rec.CreatedAt, &delivered, &rec.SuccessCount, &rec.FailureCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to scan subscriber: %w", err)
	}
	if err := json.Unmarshal([]byte(events), &rec.Events); err != nil {
		return Record{}, fmt.Errorf("failed to decode events for %s: %w", rec.ID, err)
	}
	if delivered.Valid {
		t := delivered.Time
		rec.LastDeliveredAt = &t
	}
	return rec, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
