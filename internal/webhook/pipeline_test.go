package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hermod-gw/hermod/internal/event"
	"github.com/hermod-gw/hermod/internal/subscription"
)

func waitUntil(timeout, step time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(step)
	}
	return false
}

// hookRecorder is a webhook endpoint capturing every request it serves.
type hookRecorder struct {
	mu       sync.Mutex
	requests []recordedRequest
	status   int
}

type recordedRequest struct {
	body       []byte
	subscriber string
	signature  string
}

func newHookRecorder(status int) *hookRecorder {
	return &hookRecorder{status: status}
}

func (h *hookRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	h.mu.Lock()
	h.requests = append(h.requests, recordedRequest{
		body:       body,
		subscriber: r.Header.Get(HeaderSubscriber),
		signature:  r.Header.Get(HeaderSignature),
	})
	status := h.status
	h.mu.Unlock()
	w.WriteHeader(status)
}

func (h *hookRecorder) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.requests)
}

func (h *hookRecorder) last() recordedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[len(h.requests)-1]
}

func (h *hookRecorder) setStatus(code int) {
	h.mu.Lock()
	h.status = code
	h.mu.Unlock()
}

func fastConfig() Config {
	return Config{
		MaxRetries:       3,
		RetryDelay:       20 * time.Millisecond,
		RequestTimeout:   2 * time.Second,
		PaceDelay:        5 * time.Millisecond,
		BreakerThreshold: 100, // out of the way unless a test wants it
		BreakerCooldown:  time.Minute,
	}
}

func register(t *testing.T, reg *subscription.Registry, url string, kinds ...event.Kind) subscription.Subscriber {
	t.Helper()
	sub, err := reg.Register(subscription.RegisterRequest{EndpointURL: url, Events: kinds})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return sub
}

func TestDeliverySuccess(t *testing.T) {
	rec := newHookRecorder(http.StatusOK)
	srv := httptest.NewServer(rec)
	defer srv.Close()

	reg := subscription.NewRegistry()
	sub := register(t, reg, srv.URL, event.KindSessionReady)

	p := NewPipeline(reg, fastConfig(), nil)
	defer p.Close()

	p.Publish(event.New(event.KindSessionReady, map[string]any{"identity": "****1234"}))

	if !waitUntil(2*time.Second, 10*time.Millisecond, func() bool { return rec.count() == 1 }) {
		t.Fatal("Expected one delivery")
	}

	got := rec.last()
	if got.subscriber != sub.ID {
		t.Errorf("Expected subscriber header %q, got %q", sub.ID, got.subscriber)
	}
	if !VerifySignature(sub.Secret, got.body, got.signature) {
		t.Error("Expected signature to verify against the raw body")
	}

	var payload struct {
		Event     string          `json:"event"`
		Data      json.RawMessage `json:"data"`
		Timestamp int64           `json:"timestamp"`
	}
	if err := json.Unmarshal(got.body, &payload); err != nil {
		t.Fatalf("Body is not valid JSON: %v", err)
	}
	if payload.Event != "session.ready" {
		t.Errorf("Expected event 'session.ready', got %q", payload.Event)
	}
	if payload.Timestamp == 0 {
		t.Error("Expected epoch-ms timestamp")
	}

	if ok := waitUntil(time.Second, 10*time.Millisecond, func() bool {
		s, _ := reg.Get(sub.ID)
		return s.SuccessCount == 1
	}); !ok {
		t.Error("Expected SuccessCount=1 after delivery")
	}
}

func TestFanOutMatchingOnly(t *testing.T) {
	recA := newHookRecorder(http.StatusOK)
	recB := newHookRecorder(http.StatusOK)
	srvA := httptest.NewServer(recA)
	srvB := httptest.NewServer(recB)
	defer srvA.Close()
	defer srvB.Close()

	reg := subscription.NewRegistry()
	register(t, reg, srvA.URL, event.KindMessageReceived)
	register(t, reg, srvB.URL, event.KindSessionClosed)

	p := NewPipeline(reg, fastConfig(), nil)
	defer p.Close()

	p.Publish(event.New(event.KindMessageReceived, map[string]any{"from": "x"}))

	if !waitUntil(2*time.Second, 10*time.Millisecond, func() bool { return recA.count() == 1 }) {
		t.Fatal("Expected delivery to matching subscriber")
	}
	time.Sleep(100 * time.Millisecond)
	if recB.count() != 0 {
		t.Errorf("Expected no delivery to non-matching subscriber, got %d", recB.count())
	}
}

func TestRetryThenDrop(t *testing.T) {
	rec := newHookRecorder(http.StatusInternalServerError)
	srv := httptest.NewServer(rec)
	defer srv.Close()

	reg := subscription.NewRegistry()
	sub := register(t, reg, srv.URL, event.KindMessageReceived)

	p := NewPipeline(reg, fastConfig(), nil)
	defer p.Close()

	p.Publish(event.New(event.KindMessageReceived, map[string]any{"from": "x"}))

	// MaxRetries bounds total HTTP attempts for the task
	if !waitUntil(3*time.Second, 10*time.Millisecond, func() bool { return rec.count() == 3 }) {
		t.Fatalf("Expected 3 attempts, got %d", rec.count())
	}
	time.Sleep(200 * time.Millisecond)
	if rec.count() != 3 {
		t.Errorf("Expected no attempts beyond MaxRetries, got %d", rec.count())
	}

	// Exactly one failure increment for the whole dropped task
	if ok := waitUntil(time.Second, 10*time.Millisecond, func() bool {
		s, _ := reg.Get(sub.ID)
		return s.FailureCount == 1
	}); !ok {
		s, _ := reg.Get(sub.ID)
		t.Errorf("Expected FailureCount=1 after drop, got %d", s.FailureCount)
	}
}

func TestRetryThenRecover(t *testing.T) {
	rec := newHookRecorder(http.StatusInternalServerError)
	srv := httptest.NewServer(rec)
	defer srv.Close()

	reg := subscription.NewRegistry()
	sub := register(t, reg, srv.URL, event.KindMessageReceived)

	p := NewPipeline(reg, fastConfig(), nil)
	defer p.Close()

	p.Publish(event.New(event.KindMessageReceived, map[string]any{"from": "x"}))

	if !waitUntil(2*time.Second, 5*time.Millisecond, func() bool { return rec.count() == 1 }) {
		t.Fatal("Expected first attempt")
	}
	rec.setStatus(http.StatusOK)

	if ok := waitUntil(2*time.Second, 10*time.Millisecond, func() bool {
		s, _ := reg.Get(sub.ID)
		return s.SuccessCount == 1
	}); !ok {
		t.Error("Expected retry to succeed after endpoint recovered")
	}
	s, _ := reg.Get(sub.ID)
	if s.FailureCount != 0 {
		t.Errorf("Expected FailureCount=0 for recovered task, got %d", s.FailureCount)
	}
}

func TestBreakerSkipsWithoutHTTP(t *testing.T) {
	rec := newHookRecorder(http.StatusOK)
	srv := httptest.NewServer(rec)
	defer srv.Close()

	reg := subscription.NewRegistry()
	sub := register(t, reg, srv.URL, event.KindMessageReceived)

	cfg := fastConfig()
	cfg.BreakerThreshold = 1
	p := NewPipeline(reg, cfg, nil)
	defer p.Close()

	// Force the breaker open
	p.Breaker().RecordFailure()
	if p.Breaker().Allow() {
		t.Fatal("Expected breaker open")
	}

	p.Publish(event.New(event.KindMessageReceived, map[string]any{"from": "x"}))

	// The task must fail immediately with no HTTP attempt and no retry
	if ok := waitUntil(2*time.Second, 10*time.Millisecond, func() bool {
		s, _ := reg.Get(sub.ID)
		return s.FailureCount == 1
	}); !ok {
		t.Fatal("Expected immediate permanent failure while breaker open")
	}
	if rec.count() != 0 {
		t.Errorf("Expected zero HTTP attempts while breaker open, got %d", rec.count())
	}
}

func TestPerSubscriberOrdering(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload struct {
			Data struct {
				Seq string `json:"seq"`
			} `json:"data"`
		}
		_ = json.Unmarshal(body, &payload)
		mu.Lock()
		seen = append(seen, payload.Data.Seq)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := subscription.NewRegistry()
	register(t, reg, srv.URL, event.KindMessageReceived)

	p := NewPipeline(reg, fastConfig(), nil)
	defer p.Close()

	for _, seq := range []string{"1", "2", "3", "4", "5"} {
		p.Publish(event.New(event.KindMessageReceived, map[string]string{"seq": seq}))
	}

	if !waitUntil(3*time.Second, 10*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}) {
		t.Fatal("Expected 5 deliveries")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, want := range []string{"1", "2", "3", "4", "5"} {
		if seen[i] != want {
			t.Fatalf("Expected enqueue order preserved, got %v", seen)
		}
	}
}

func TestPublishIsEnqueueOnly(t *testing.T) {
	// Endpoint that blocks until released; Publish must not wait on it.
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	reg := subscription.NewRegistry()
	register(t, reg, srv.URL, event.KindMessageReceived)

	p := NewPipeline(reg, fastConfig(), nil)
	defer p.Close()

	start := time.Now()
	p.Publish(event.New(event.KindMessageReceived, map[string]any{"from": "x"}))
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Publish blocked for %v", elapsed)
	}
}

func TestSubscriberRemovedBeforeDelivery(t *testing.T) {
	rec := newHookRecorder(http.StatusOK)
	srv := httptest.NewServer(rec)
	defer srv.Close()

	reg := subscription.NewRegistry()
	sub := register(t, reg, srv.URL, event.KindMessageReceived)

	cfg := fastConfig()
	cfg.PaceDelay = 50 * time.Millisecond
	p := NewPipeline(reg, cfg, nil)
	defer p.Close()

	// Two tasks; remove the subscriber while the first paces.
	p.Publish(event.New(event.KindMessageReceived, map[string]any{"n": 1}))
	if !waitUntil(time.Second, 5*time.Millisecond, func() bool { return rec.count() == 1 }) {
		t.Fatal("Expected first delivery")
	}
	p.Publish(event.New(event.KindMessageReceived, map[string]any{"n": 2}))
	if err := reg.Remove(sub.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if rec.count() != 1 {
		t.Errorf("Expected dropped task for removed subscriber, got %d deliveries", rec.count())
	}
}

func TestTestDelivery(t *testing.T) {
	rec := newHookRecorder(http.StatusOK)
	srv := httptest.NewServer(rec)
	defer srv.Close()

	reg := subscription.NewRegistry()
	sub := register(t, reg, srv.URL, event.KindSessionReady)

	cfg := fastConfig()
	cfg.BreakerThreshold = 1
	p := NewPipeline(reg, cfg, nil)
	defer p.Close()

	// TestDelivery bypasses the open-breaker check and closes it on success
	p.Breaker().RecordFailure()
	if err := p.TestDelivery(context.Background(), sub.ID); err != nil {
		t.Fatalf("TestDelivery failed: %v", err)
	}
	if rec.count() != 1 {
		t.Errorf("Expected one synchronous delivery, got %d", rec.count())
	}
	if !p.Breaker().Allow() {
		t.Error("Expected breaker closed after successful test delivery")
	}

	if err := p.TestDelivery(context.Background(), "missing"); err == nil {
		t.Error("Expected error for unknown subscriber")
	}
}

func TestTestDeliveryEndpointFailure(t *testing.T) {
	rec := newHookRecorder(http.StatusBadGateway)
	srv := httptest.NewServer(rec)
	defer srv.Close()

	reg := subscription.NewRegistry()
	sub := register(t, reg, srv.URL, event.KindSessionReady)

	p := NewPipeline(reg, fastConfig(), nil)
	defer p.Close()

	if err := p.TestDelivery(context.Background(), sub.ID); err == nil {
		t.Error("Expected error for non-2xx response")
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	rec := newHookRecorder(http.StatusOK)
	srv := httptest.NewServer(rec)
	defer srv.Close()

	reg := subscription.NewRegistry()
	sub := register(t, reg, srv.URL, event.KindMessageReceived)

	p := NewPipeline(reg, fastConfig(), nil)
	p.Close()

	p.Publish(event.New(event.KindMessageReceived, map[string]any{"from": "x"}))
	time.Sleep(100 * time.Millisecond)
	if rec.count() != 0 {
		t.Errorf("Expected no deliveries after Close, got %d", rec.count())
	}
	if err := p.TestDelivery(context.Background(), sub.ID); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestSnapshot(t *testing.T) {
	reg := subscription.NewRegistry()
	register(t, reg, "https://example.com/hook", event.KindMessageReceived)

	p := NewPipeline(reg, fastConfig(), nil)
	defer p.Close()

	st := p.Snapshot()
	if st.QueueDepth != 0 {
		t.Errorf("Expected empty queue, got %d", st.QueueDepth)
	}
	if st.Breaker.Open {
		t.Error("Expected breaker closed")
	}
	if len(st.Subscribers) != 1 {
		t.Errorf("Expected 1 subscriber, got %d", len(st.Subscribers))
	}
}
