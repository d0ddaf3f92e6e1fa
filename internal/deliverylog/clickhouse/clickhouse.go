package clickhouse

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/hermod-gw/hermod/internal/deliverylog"
)

// Sink sends delivery entries to ClickHouse using the official Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(addr, table string) (*Sink, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: "default",
			Password: "",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Sink{conn: conn, table: table}, nil
}

// EnsureSchema creates the delivery log table when missing.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	// #nosec G201 -- table name comes from operator config, not user input.
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		occurred_at DateTime,
		subscriber_id String,
		event_kind String,
		attempt Int32,
		result String,
		status_code Int32,
		error String
	) ENGINE = MergeTree() ORDER BY (occurred_at, subscriber_id)`, s.table)
	if err := s.conn.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to ensure ClickHouse schema: %w", err)
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e deliverylog.Entry) error {
	query := fmt.Sprintf(`INSERT INTO %s (occurred_at, subscriber_id, event_kind, attempt, result, status_code, error) VALUES (?, ?, ?, ?, ?, ?, ?)`, s.table)

	err := s.conn.Exec(ctx, query,
		e.OccurredAt,
		e.SubscriberID,
		e.EventKind,
		int32(e.Attempt),
		string(e.Result),
		int32(e.StatusCode),
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry into ClickHouse: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
