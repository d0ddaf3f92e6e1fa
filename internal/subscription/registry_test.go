package subscription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hermod-gw/hermod/internal/event"
	"github.com/hermod-gw/hermod/internal/store"
)

func TestRegisterGeneratesIDAndSecret(t *testing.T) {
	r := NewRegistry()
	sub, err := r.Register(RegisterRequest{
		EndpointURL: "https://example.com/hook",
		Events:      []event.Kind{event.KindMessageReceived},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if sub.ID == "" {
		t.Error("Expected generated id")
	}
	if len(sub.Secret) != 64 {
		t.Errorf("Expected 64 hex chars of secret, got %d", len(sub.Secret))
	}
	if !sub.Active {
		t.Error("Expected subscriber active by default")
	}
}

func TestRegisterCollectsAllViolations(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(RegisterRequest{
		EndpointURL: "not-a-url",
		Events:      []event.Kind{"bogus.kind"},
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
	if len(ve.Violations) != 2 {
		t.Errorf("Expected 2 violations (url and events), got %d: %v", len(ve.Violations), ve.Violations)
	}
}

func TestRegisterRejectsEmptyEvents(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(RegisterRequest{EndpointURL: "https://example.com/hook"})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("Expected ValidationError, got %v", err)
	}
}

func TestRegisterRejectsNonHTTPScheme(t *testing.T) {
	r := NewRegistry()
	_, err := r.Register(RegisterRequest{
		EndpointURL: "ftp://example.com/hook",
		Events:      []event.Kind{event.KindSessionReady},
	})
	if err == nil {
		t.Error("Expected error for ftp scheme")
	}
}

func TestUpdatePartial(t *testing.T) {
	r := NewRegistry()
	sub, err := r.Register(RegisterRequest{
		EndpointURL: "https://example.com/hook",
		Events:      []event.Kind{event.KindMessageReceived},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	active := false
	updated, err := r.Update(sub.ID, UpdateRequest{Active: &active})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Active {
		t.Error("Expected subscriber disabled")
	}
	if updated.EndpointURL != sub.EndpointURL {
		t.Error("Expected endpoint unchanged on partial update")
	}

	if _, err := r.Update("missing", UpdateRequest{Active: &active}); err == nil {
		t.Error("Expected NotFoundError for unknown id")
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	sub, _ := r.Register(RegisterRequest{
		EndpointURL: "https://example.com/hook",
		Events:      []event.Kind{event.KindMessageReceived},
	})
	if err := r.Remove(sub.ID); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	var nf *NotFoundError
	if err := r.Remove(sub.ID); !errors.As(err, &nf) {
		t.Errorf("Expected NotFoundError on second remove, got %v", err)
	}
	if len(r.List()) != 0 {
		t.Error("Expected empty list after Remove")
	}
}

func TestMatchingOrderAndFiltering(t *testing.T) {
	r := NewRegistry()
	a, _ := r.Register(RegisterRequest{
		EndpointURL: "https://a.example.com/hook",
		Events:      []event.Kind{event.KindMessageReceived},
	})
	b, _ := r.Register(RegisterRequest{
		EndpointURL: "https://b.example.com/hook",
		Events:      []event.Kind{event.KindMessageReceived, event.KindSessionReady},
	})
	c, _ := r.Register(RegisterRequest{
		EndpointURL: "https://c.example.com/hook",
		Events:      []event.Kind{event.KindSessionReady},
	})

	got := r.Matching(event.KindMessageReceived)
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Errorf("Expected [a b] in registration order, got %v", ids(got))
	}

	// Disabled subscribers never match
	active := false
	if _, err := r.Update(b.ID, UpdateRequest{Active: &active}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got = r.Matching(event.KindSessionReady)
	if len(got) != 1 || got[0].ID != c.ID {
		t.Errorf("Expected only [c], got %v", ids(got))
	}
}

func TestCounters(t *testing.T) {
	r := NewRegistry()
	sub, _ := r.Register(RegisterRequest{
		EndpointURL: "https://example.com/hook",
		Events:      []event.Kind{event.KindMessageReceived},
	})

	at := time.Now()
	r.RecordSuccess(sub.ID, at)
	r.RecordSuccess(sub.ID, at.Add(time.Second))
	r.RecordFailure(sub.ID)

	got, err := r.Get(sub.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.SuccessCount != 2 {
		t.Errorf("Expected SuccessCount=2, got %d", got.SuccessCount)
	}
	if got.FailureCount != 1 {
		t.Errorf("Expected FailureCount=1, got %d", got.FailureCount)
	}
	if got.LastDeliveredAt == nil {
		t.Error("Expected LastDeliveredAt to be set")
	}

	// Unknown ids are ignored
	r.RecordSuccess("missing", at)
	r.RecordFailure("missing")
}

func TestSetStoreHydrates(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLiteStore("")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()
	if err := st.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	r1 := NewRegistry()
	if err := r1.SetStore(ctx, st); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}
	sub, err := r1.Register(RegisterRequest{
		EndpointURL: "https://example.com/hook",
		Events:      []event.Kind{event.KindMessageReceived, event.KindSessionClosed},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Fresh registry over the same store sees the subscriber
	r2 := NewRegistry()
	if err := r2.SetStore(ctx, st); err != nil {
		t.Fatalf("SetStore failed: %v", err)
	}
	got, err := r2.Get(sub.ID)
	if err != nil {
		t.Fatalf("Expected hydrated subscriber: %v", err)
	}
	if got.EndpointURL != sub.EndpointURL || len(got.Events) != 2 {
		t.Errorf("Hydrated subscriber differs: %+v", got)
	}
	if got.Secret != sub.Secret {
		t.Error("Expected secret to survive persistence")
	}
}

func ids(subs []Subscriber) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.ID
	}
	return out
}
