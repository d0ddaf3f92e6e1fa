package store

import (
	"context"
	"time"
)

// Record is the persisted shape of a webhook subscriber. ID is unique across
// all subscribers. Events holds raw kind strings so the store stays free of
// domain imports. Timestamps are UTC.
type Record struct {
	ID              string
	EndpointURL     string
	Events          []string
	Secret          string
	Active          bool
	CreatedAt       time.Time
	LastDeliveredAt *time.Time
	SuccessCount    uint64
	FailureCount    uint64
}

// Store persists subscriber records so registrations survive a process
// restart. In-flight delivery tasks are intentionally not persisted.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Save(ctx context.Context, rec Record) error
	GetByID(ctx context.Context, id string) (Record, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}
