// Package broadcast sends one payload to many recipients as a simple
// sequential loop with fixed pacing between sends. Only one broadcast may
// run at a time; overlapping requests are rejected rather than queued.
package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// ErrBusy is returned when a broadcast is already in progress.
var ErrBusy = errors.New("broadcast already in progress")

// Sender delivers a single message. Satisfied by the session manager.
type Sender interface {
	Send(ctx context.Context, recipient string, payload []byte) error
}

// Report summarizes a finished broadcast.
type Report struct {
	Sent   []string          `json:"sent"`
	Failed map[string]string `json:"failed,omitempty"`
}

// Broadcaster runs paced sequential broadcasts.
type Broadcaster struct {
	sender  Sender
	pace    time.Duration
	logger  *slog.Logger
	running atomic.Bool
}

// New creates a Broadcaster. pace <= 0 selects one second between sends.
func New(sender Sender, pace time.Duration, logger *slog.Logger) *Broadcaster {
	if pace <= 0 {
		pace = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{sender: sender, pace: pace, logger: logger}
}

// Run sends payload to each recipient in order, pausing pace between
// consecutive sends. Individual failures are collected in the report and do
// not stop the loop; a canceled context does.
func (b *Broadcaster) Run(ctx context.Context, recipients []string, payload []byte) (Report, error) {
	if !b.running.CompareAndSwap(false, true) {
		return Report{}, ErrBusy
	}
	defer b.running.Store(false)

	report := Report{Failed: make(map[string]string)}
	for i, r := range recipients {
		if i > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(b.pace):
			}
		}
		if err := b.sender.Send(ctx, r, payload); err != nil {
			b.logger.Warn("broadcast send failed", "recipient", r, "error", err)
			report.Failed[r] = err.Error()
			continue
		}
		report.Sent = append(report.Sent, r)
	}
	if len(report.Failed) == 0 {
		report.Failed = nil
	}
	return report, nil
}
