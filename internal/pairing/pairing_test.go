package pairing

import (
	"testing"
	"time"
)

func TestIssueAndRead(t *testing.T) {
	s := NewStore(time.Minute)
	if !s.Issue("tok-1") {
		t.Fatal("Expected first Issue to succeed")
	}
	art, ok := s.Read()
	if !ok {
		t.Fatal("Expected artifact after Issue")
	}
	if art.Token != "tok-1" {
		t.Errorf("Expected token 'tok-1', got %q", art.Token)
	}
	if !art.Locked {
		t.Error("Expected fresh artifact to be locked")
	}
}

func TestIssueNoOpWhileLocked(t *testing.T) {
	s := NewStore(time.Minute)
	if !s.Issue("tok-1") {
		t.Fatal("first Issue failed")
	}
	if s.Issue("tok-2") {
		t.Error("Expected Issue to be a no-op while locked")
	}
	art, _ := s.Read()
	if art.Token != "tok-1" {
		t.Errorf("Expected token to stay 'tok-1', got %q", art.Token)
	}
}

func TestLockExpires(t *testing.T) {
	s := NewStore(30 * time.Second)
	base := time.Now()
	now := base
	s.SetNowFunc(func() time.Time { return now })

	if !s.Issue("tok-1") {
		t.Fatal("first Issue failed")
	}

	now = base.Add(29 * time.Second)
	if s.Issue("tok-2") {
		t.Error("Expected Issue rejected before TTL expiry")
	}

	now = base.Add(31 * time.Second)
	art, _ := s.Read()
	if art.Locked {
		t.Error("Expected Read to report unlocked after TTL")
	}
	if !s.Issue("tok-2") {
		t.Error("Expected Issue accepted after TTL without explicit unlock")
	}
	art, _ = s.Read()
	if art.Token != "tok-2" {
		t.Errorf("Expected token 'tok-2', got %q", art.Token)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(0)
	s.Issue("tok-1")
	s.Clear()
	if _, ok := s.Read(); ok {
		t.Error("Expected no artifact after Clear")
	}
}

func TestDefaultLockTTL(t *testing.T) {
	s := NewStore(0)
	if s.lockTTL != DefaultLockTTL {
		t.Errorf("Expected default TTL %v, got %v", DefaultLockTTL, s.lockTTL)
	}
}
