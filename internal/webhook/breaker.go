package webhook

import (
	"sync"
	"time"

	"github.com/hermod-gw/hermod/internal/metrics"
)

// Breaker is the pipeline's protective short-circuit. It is global across
// all subscribers: repeated delivery failures anywhere open it, and any
// successful delivery closes it again. While open, tasks are dropped
// without an HTTP attempt so the queue cannot grow without bound during an
// outage.
type Breaker struct {
	mu        sync.Mutex
	failures  int
	open      bool
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// BreakerState is a read-only snapshot for Stats.
type BreakerState struct {
	Open                bool       `json:"open"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
}

// NewBreaker creates a breaker that opens once failures reach threshold and
// auto-closes after cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 60 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// SetNowFunc overrides the clock. Tests only.
func (b *Breaker) SetNowFunc(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// Allow reports whether a delivery may proceed. An open breaker whose
// cooldown has elapsed closes itself, resetting the failure counter.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.open {
		return true
	}
	if b.now().Sub(b.openedAt) >= b.cooldown {
		b.open = false
		b.failures = 0
		metrics.SetBreakerOpen(false)
		return true
	}
	return false
}

// RecordFailure counts a delivery failure (retried or terminal) and opens
// the breaker once the threshold is crossed.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if !b.open && b.failures >= b.threshold {
		b.open = true
		b.openedAt = b.now()
		metrics.SetBreakerOpen(true)
	}
}

// RecordSuccess closes the breaker and resets the failure counter.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.open {
		b.open = false
		metrics.SetBreakerOpen(false)
	}
}

// State returns a snapshot of the breaker.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := BreakerState{Open: b.open, ConsecutiveFailures: b.failures}
	if b.open {
		t := b.openedAt
		st.OpenedAt = &t
	}
	return st
}
