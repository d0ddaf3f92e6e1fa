package deliverylog

import (
	"context"
	"errors"
	"testing"
)

type recordSink struct {
	entries []Entry
	err     error
}

func (r *recordSink) Send(_ context.Context, e Entry) error {
	if r.err != nil {
		return r.err
	}
	r.entries = append(r.entries, e)
	return nil
}

func TestMultiFansOut(t *testing.T) {
	a, b := &recordSink{}, &recordSink{}
	m := Multi{a, b}
	if err := m.Send(context.Background(), Entry{SubscriberID: "s1"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(a.entries) != 1 || len(b.entries) != 1 {
		t.Errorf("Expected both sinks to receive the entry, got %d and %d", len(a.entries), len(b.entries))
	}
}

func TestMultiReturnsFirstErrorAndContinues(t *testing.T) {
	errBoom := errors.New("boom")
	a := &recordSink{err: errBoom}
	b := &recordSink{}
	m := Multi{a, b}
	err := m.Send(context.Background(), Entry{SubscriberID: "s1"})
	if !errors.Is(err, errBoom) {
		t.Errorf("Expected first error, got %v", err)
	}
	if len(b.entries) != 1 {
		t.Errorf("Expected second sink to still receive the entry, got %d", len(b.entries))
	}
}
