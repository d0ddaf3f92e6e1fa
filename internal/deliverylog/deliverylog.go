package deliverylog

import (
	"context"
	"time"
)

// Result describes how a delivery attempt ended.
type Result string

const (
	ResultSuccess     Result = "success"      // 2xx response
	ResultRetry       Result = "retry"        // failure, task re-enqueued
	ResultDropped     Result = "dropped"      // retries exhausted, task discarded
	ResultBreakerOpen Result = "breaker_open" // skipped without an HTTP call
)

// Entry is one delivery attempt, appended to external audit/analytics
// systems. It is independent of the pipeline's in-memory queue state.
type Entry struct {
	SubscriberID string    `json:"subscriber_id"`
	EventKind    string    `json:"event_kind"`
	Attempt      int       `json:"attempt"`
	Result       Result    `json:"result"`
	StatusCode   int       `json:"status_code,omitempty"`
	Error        string    `json:"error,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Sink is a destination for delivery entries (analytics/audit systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Entry) error
}

// Multi fans an entry out to several sinks, returning the first error.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Entry) error {
	var firstErr error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
