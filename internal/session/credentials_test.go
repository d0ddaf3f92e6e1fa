package session

import (
	"path/filepath"
	"testing"
)

func TestFileCredentialStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	cs := NewFileCredentialStore(path)

	if err := cs.Save([]byte(`{"session":"abc"}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, ok, err := cs.Load()
	if err != nil || !ok {
		t.Fatalf("Load failed: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"session":"abc"}` {
		t.Errorf("Unexpected credentials: %s", got)
	}

	// Save replaces atomically
	if err := cs.Save([]byte(`{"session":"def"}`)); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}
	got, _, _ = cs.Load()
	if string(got) != `{"session":"def"}` {
		t.Errorf("Expected replaced credentials, got %s", got)
	}
}

func TestFileCredentialStoreClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	cs := NewFileCredentialStore(path)

	// Clearing a store that never saved is not an error
	if err := cs.Clear(); err != nil {
		t.Fatalf("Clear on empty store failed: %v", err)
	}

	if err := cs.Save([]byte(`{}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := cs.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if _, ok, err := cs.Load(); err != nil {
		t.Fatalf("Load after Clear errored: %v", err)
	} else if ok {
		t.Error("Expected no credentials after Clear")
	}
}
