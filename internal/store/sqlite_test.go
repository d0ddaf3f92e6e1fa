package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testRecord(id string) Record {
	return Record{
		ID:          id,
		EndpointURL: "https://example.com/hook",
		Events:      []string{"message.received", "session.ready"},
		Secret:      "deadbeef",
		Active:      true,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
}

func TestSQLiteSaveGetRoundtrip(t *testing.T) {
	st, err := NewSQLiteStore("")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	rec := testRecord("sub-1")
	if err := st.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := st.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.EndpointURL != rec.EndpointURL {
		t.Errorf("Expected endpoint %q, got %q", rec.EndpointURL, got.EndpointURL)
	}
	if len(got.Events) != 2 || got.Events[0] != "message.received" {
		t.Errorf("Events did not roundtrip: %v", got.Events)
	}
	if got.LastDeliveredAt != nil {
		t.Error("Expected nil LastDeliveredAt")
	}
}

func TestSQLiteUpsert(t *testing.T) {
	st, err := NewSQLiteStore("")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	rec := testRecord("sub-1")
	if err := st.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	at := time.Now().UTC().Truncate(time.Second)
	rec.SuccessCount = 7
	rec.LastDeliveredAt = &at
	rec.Active = false
	if err := st.Save(ctx, rec); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	got, err := st.GetByID(ctx, "sub-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.SuccessCount != 7 {
		t.Errorf("Expected SuccessCount=7, got %d", got.SuccessCount)
	}
	if got.Active {
		t.Error("Expected Active=false after upsert")
	}
	if got.LastDeliveredAt == nil {
		t.Error("Expected LastDeliveredAt after upsert")
	}
}

func TestSQLiteDeleteAndNotFound(t *testing.T) {
	st, err := NewSQLiteStore("")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	if err := st.Save(ctx, testRecord("sub-1")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := st.Delete(ctx, "sub-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := st.Delete(ctx, "sub-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := st.GetByID(ctx, "sub-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound from GetByID, got %v", err)
	}
}

func TestSQLiteListOrder(t *testing.T) {
	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "subs.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"a", "b", "c"} {
		rec := testRecord(id)
		rec.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := st.Save(ctx, rec); err != nil {
			t.Fatalf("Save %s failed: %v", id, err)
		}
	}

	recs, err := st.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(recs))
	}
	for i, want := range []string{"a", "b", "c"} {
		if recs[i].ID != want {
			t.Errorf("Expected id %q at %d, got %q", want, i, recs[i].ID)
		}
	}
}

func TestFromDSN(t *testing.T) {
	st, err := FromDSN("sqlite://" + filepath.Join(t.TempDir(), "subs.db"))
	if err != nil {
		t.Fatalf("FromDSN failed: %v", err)
	}
	if _, ok := st.(*SQLiteStore); !ok {
		t.Errorf("Expected *SQLiteStore, got %T", st)
	}
	_ = st.Close()

	st, err = FromDSN(filepath.Join(t.TempDir(), "bare.db"))
	if err != nil {
		t.Fatalf("FromDSN bare path failed: %v", err)
	}
	if _, ok := st.(*SQLiteStore); !ok {
		t.Errorf("Expected *SQLiteStore for bare path, got %T", st)
	}
	_ = st.Close()
}
