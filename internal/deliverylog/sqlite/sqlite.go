package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hermod-gw/hermod/internal/deliverylog"
)

// Sink writes delivery entries to a SQLite database.
type Sink struct {
	db *sql.DB
}

// New creates a new SQLite delivery log sink.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	// Append-only audit table, no primary key.
	stmt := `CREATE TABLE IF NOT EXISTS delivery_log(
		occurred_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP),
		subscriber_id TEXT NOT NULL,
		event_kind TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		result TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		error TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *Sink) Send(ctx context.Context, e deliverylog.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO delivery_log(occurred_at, subscriber_id, event_kind, attempt, result, status_code, error)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC(), e.SubscriberID, e.EventKind, e.Attempt, string(e.Result), e.StatusCode, e.Error)
	return err
}

// Count returns the number of logged attempts for a subscriber. Tests only.
func (s *Sink) Count(ctx context.Context, subscriberID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM delivery_log WHERE subscriber_id = ?`, subscriberID).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
