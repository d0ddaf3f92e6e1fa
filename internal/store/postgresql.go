package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgreSQLStore implements Store using the pgx stdlib driver.
type PostgreSQLStore struct {
	db *sql.DB
}

// NewPostgreSQLStore connects using a postgres:// DSN.
func NewPostgreSQLStore(dsn string) (*PostgreSQLStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgresql database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &PostgreSQLStore{db: db}
	if err := s.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgreSQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS subscribers(
		id TEXT PRIMARY KEY,
		endpoint_url TEXT NOT NULL,
		events TEXT NOT NULL,
		secret TEXT NOT NULL,
		active BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		last_delivered_at TIMESTAMPTZ NULL,
		success_count BIGINT NOT NULL DEFAULT 0,
		failure_count BIGINT NOT NULL DEFAULT 0
	)`)
	if err != nil {
		return fmt.Errorf("failed to ensure subscribers schema: %w", err)
	}
	return nil
}

func (s *PostgreSQLStore) Save(ctx context.Context, rec Record) error {
	events, err := json.Marshal(rec.Events)
	if err != nil {
		return fmt.Errorf("failed to encode events: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO subscribers
		(id, endpoint_url, events, secret, active, created_at, last_delivered_at, success_count, failure_count)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT(id) DO UPDATE SET
			endpoint_url=EXCLUDED.endpoint_url,
			events=EXCLUDED.events,
			secret=EXCLUDED.secret,
			active=EXCLUDED.active,
			last_delivered_at=EXCLUDED.last_delivered_at,
			success_count=EXCLUDED.success_count,
			failure_count=EXCLUDED.failure_count`,
		rec.ID, rec.EndpointURL, string(events), rec.Secret, rec.Active,
		rec.CreatedAt.UTC(), nullableTime(rec.LastDeliveredAt), rec.SuccessCount, rec.FailureCount)
	if err != nil {
		return fmt.Errorf("failed to save subscriber %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgreSQLStore) GetByID(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, endpoint_url, events, secret, active,
		created_at, last_delivered_at, success_count, failure_count
		FROM subscribers WHERE id = $1`, id)
	return scanRecord(row)
}

func (s *PostgreSQLStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete subscriber %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgreSQLStore) List(ctx context.Context) ([]Record, error) {
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

func (s *PostgreSQLStore) Close() error { return s.db.Close() }

// Ping verifies connectivity; used by integration tests.
func (s *PostgreSQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping postgresql database: %w", err)
	}
	return nil
}
