// Package webhook is the event delivery pipeline: it fans domain events out
// to matching subscribers through an in-process FIFO queue drained by a
// single worker, with bounded retries and a global circuit breaker. A slow
// or dead subscriber can never stall event production: Publish is
// enqueue-only and performs no I/O.
package webhook

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hermod-gw/hermod/internal/deliverylog"
	"github.com/hermod-gw/hermod/internal/event"
	"github.com/hermod-gw/hermod/internal/metrics"
	"github.com/hermod-gw/hermod/internal/subscription"
)

// Header names attached to every delivery request.
const (
	HeaderSubscriber = "X-Hermod-Subscriber"
	HeaderSignature  = "X-Hermod-Signature"
)

// ErrClosed is returned by TestDelivery after Close.
var ErrClosed = errors.New("webhook pipeline closed")

// Config tunes the delivery pipeline.
type Config struct {
	MaxRetries       int           // HTTP attempts per task before dropping (default 3)
	RetryDelay       time.Duration // base re-enqueue delay, multiplied by attempt number (default 2s)
	RequestTimeout   time.Duration // bound on a single delivery POST (default 30s)
	PaceDelay        time.Duration // fixed delay between consecutive deliveries (default 100ms)
	BreakerThreshold int           // consecutive failures before the breaker opens (default 5)
	BreakerCooldown  time.Duration // open duration before auto-close (default 60s)
}

func (c Config) withDefaults() Config {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.PaceDelay <= 0 {
		c.PaceDelay = 100 * time.Millisecond
	}
	return c
}

// Pipeline consumes domain events and delivers them to subscribers.
type Pipeline struct {
	cfg      Config
	registry *subscription.Registry
	breaker  *Breaker
	client   *http.Client
	logger   *slog.Logger
	auditMu  sync.RWMutex
	audit    deliverylog.Sink

	mu     sync.Mutex
	queue  []*Task
	closed bool

	wake chan struct{}
	done chan struct{}
}

// NewPipeline creates the pipeline and starts its drain goroutine.
func NewPipeline(registry *subscription.Registry, cfg Config, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg:      cfg,
		registry: registry,
		breaker:  NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		client:   &http.Client{Timeout: cfg.RequestTimeout},
		logger:   logger,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go p.drain()
	return p
}

// SetAuditSink attaches a delivery log sink. Entries are written from the
// drain goroutine, best-effort.
func (p *Pipeline) SetAuditSink(s deliverylog.Sink) {
	p.auditMu.Lock()
	p.audit = s
	p.auditMu.Unlock()
}

// Breaker exposes the pipeline's circuit breaker (for Stats and tests).
func (p *Pipeline) Breaker() *Breaker { return p.breaker }

// Publish fans an event out to every active subscriber whose event set
// contains its kind, one task per subscriber. It returns immediately:
// no network I/O happens on this path, so it is safe to call from inside
// the session manager's notification handlers.
func (p *Pipeline) Publish(e event.Event) {
	subs := p.registry.Matching(e.Kind)
	if len(subs) == 0 {
		return
	}
	body := encodeWirePayload(e)
	now := time.Now().UTC()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	for _, sub := range subs {
		p.queue = append(p.queue, &Task{
			SubscriberID: sub.ID,
			EventKind:    e.Kind,
			Body:         body,
			EnqueuedAt:   now,
		})
	}
	depth := len(p.queue)
	p.mu.Unlock()

	metrics.SetQueueDepth(depth)
	p.kick()
}

// TestDelivery synchronously POSTs a synthetic payload to the subscriber,
// bypassing the queue, retries and the open-breaker check. A success still
// closes the breaker, like any other successful delivery.
func (p *Pipeline) TestDelivery(ctx context.Context, id string) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	sub, err := p.registry.Get(id)
	if err != nil {
		return err
	}
	e := event.New(event.KindSessionReady, map[string]any{"test": true})
	body := encodeWirePayload(e)

	status, err := p.post(ctx, sub, body)
	if err != nil {
		return fmt.Errorf("test delivery failed: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("test delivery failed: endpoint returned status %d", status)
	}
	p.breaker.RecordSuccess()
	return nil
}

// Stats is a read-only snapshot of the pipeline.
type Stats struct {
	QueueDepth  int                       `json:"queue_depth"`
	Breaker     BreakerState              `json:"breaker"`
	Subscribers []subscription.Subscriber `json:"subscribers"`
}

// Snapshot returns current queue depth, breaker state and per-subscriber
// counters.
func (p *Pipeline) Snapshot() Stats {
	p.mu.Lock()
	depth := len(p.queue)
	p.mu.Unlock()
	return Stats{
		QueueDepth:  depth,
		Breaker:     p.breaker.State(),
		Subscribers: p.registry.List(),
	}
}

// Close stops the drain goroutine. Pending tasks are dropped and never
// persisted.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	close(p.done)
}

func (p *Pipeline) kick() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) pop() *Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	t := p.queue[0]
	p.queue = p.queue[1:]
	metrics.SetQueueDepth(len(p.queue))
	return t
}

// enqueue re-adds a retried task at the tail of the queue.
func (p *Pipeline) enqueue(t *Task) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, t)
	depth := len(p.queue)
	p.mu.Unlock()
	metrics.SetQueueDepth(depth)
	p.kick()
}

// drain is the single delivery worker. It processes tasks strictly in
// enqueue order, so per-subscriber ordering holds by construction.
func (p *Pipeline) drain() {
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
		}
		for {
			t := p.pop()
			if t == nil {
				break
			}
			p.process(t)
			// Fixed pacing between consecutive deliveries so a burst of
			// events does not saturate remote endpoints.
			select {
			case <-p.done:
				return
			case <-time.After(p.cfg.PaceDelay):
			}
		}
	}
}

func (p *Pipeline) process(t *Task) {
	if !p.breaker.Allow() {
		// No silent retry while the breaker is open: the task is counted
		// as a permanent failure immediately.
		p.registry.RecordFailure(t.SubscriberID)
		metrics.IncDelivery("breaker_open")
		p.logAttempt(t, deliverylog.ResultBreakerOpen, 0, "circuit breaker open")
		p.logger.Warn("delivery skipped: breaker open",
			"subscriber", t.SubscriberID, "event", string(t.EventKind))
		return
	}

	sub, err := p.registry.Get(t.SubscriberID)
	if err != nil {
		// Subscriber removed between enqueue and delivery.
		p.logger.Info("delivery dropped: subscriber gone", "subscriber", t.SubscriberID)
		return
	}
	if !sub.Active {
		p.logger.Info("delivery dropped: subscriber disabled", "subscriber", t.SubscriberID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.RequestTimeout)
	start := time.Now()
	status, err := p.post(ctx, sub, t.Body)
	cancel()
	metrics.ObserveDeliveryDuration(time.Since(start).Seconds())

	if err == nil && status >= 200 && status < 300 {
		p.registry.RecordSuccess(sub.ID, time.Now().UTC())
		p.breaker.RecordSuccess()
		metrics.IncDelivery("success")
		p.logAttempt(t, deliverylog.ResultSuccess, status, "")
		return
	}

	errText := fmt.Sprintf("status %d", status)
	if err != nil {
		errText = err.Error()
	}
	p.breaker.RecordFailure()
	t.Attempt++

	if t.Attempt < p.cfg.MaxRetries {
		// Delay grows with the attempt number, distinct from the session
		// manager's exponential backoff.
		delay := time.Duration(t.Attempt) * p.cfg.RetryDelay
		metrics.IncDeliveryRetry()
		p.logAttempt(t, deliverylog.ResultRetry, status, errText)
		p.logger.Warn("delivery failed, retrying",
			"subscriber", sub.ID, "event", string(t.EventKind),
			"attempt", t.Attempt, "delay", delay, "error", errText)
		time.AfterFunc(delay, func() { p.enqueue(t) })
		return
	}

	// Retries exhausted: one failureCount increment for the whole task.
	p.registry.RecordFailure(sub.ID)
	metrics.IncDelivery("dropped")
	p.logAttempt(t, deliverylog.ResultDropped, status, errText)
	p.logger.Error("delivery dropped after retries",
		"subscriber", sub.ID, "event", string(t.EventKind),
		"attempts", t.Attempt, "error", errText)
}

func (p *Pipeline) post(ctx context.Context, sub subscription.Subscriber, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSubscriber, sub.ID)
	req.Header.Set(HeaderSignature, Sign(sub.Secret, body))

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode, nil
}

func (p *Pipeline) logAttempt(t *Task, result deliverylog.Result, status int, errText string) {
	p.auditMu.RLock()
	sink := p.audit
	p.auditMu.RUnlock()
	if sink == nil {
		return
	}
	entry := deliverylog.Entry{
		SubscriberID: t.SubscriberID,
		EventKind:    string(t.EventKind),
		Attempt:      t.Attempt,
		Result:       result,
		StatusCode:   status,
		Error:        errText,
		OccurredAt:   time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Send(ctx, entry); err != nil {
		p.logger.Warn("failed to write delivery log entry", "error", err)
	}
}
