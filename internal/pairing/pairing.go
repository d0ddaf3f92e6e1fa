// Package pairing holds the transient scannable pairing artifact for a
// session that is waiting to be linked. At most one artifact exists at a
// time; a short-lived lock prevents a half-rendered artifact from being
// replaced while it may still be served.
package pairing

import (
	"sync"
	"time"
)

// DefaultLockTTL bounds how long a newly issued artifact is protected from
// rotation. The lock expires on its own so a lost unlock cannot wedge the
// store.
const DefaultLockTTL = 30 * time.Second

// Artifact is the current pairing token plus its lock state.
type Artifact struct {
	Token         string    `json:"token"`
	IssuedAt      time.Time `json:"issued_at"`
	Locked        bool      `json:"locked"`
	LockExpiresAt time.Time `json:"lock_expires_at,omitempty"`
}

// Store keeps the single current pairing artifact.
type Store struct {
	mu      sync.Mutex
	art     *Artifact
	lockTTL time.Duration
	now     func() time.Time
}

// NewStore creates a Store. lockTTL <= 0 selects DefaultLockTTL.
func NewStore(lockTTL time.Duration) *Store {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	return &Store{lockTTL: lockTTL, now: time.Now}
}

// SetNowFunc overrides the clock. Tests only.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Issue stores a new artifact for rawToken. While the previous artifact's
// lock is still live the call is a no-op and returns false; once the TTL
// has elapsed a new token is accepted even without an explicit unlock.
func (s *Store) Issue(rawToken string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.art != nil && s.art.Locked && now.Before(s.art.LockExpiresAt) {
		return false
	}
	s.art = &Artifact{
		Token:         rawToken,
		IssuedAt:      now,
		Locked:        true,
		LockExpiresAt: now.Add(s.lockTTL),
	}
	return true
}

// Read returns a copy of the current artifact, or ok=false when none is
// outstanding. Never blocks.
func (s *Store) Read() (Artifact, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.art == nil {
		return Artifact{}, false
	}
	a := *s.art
	if a.Locked && !s.now().Before(a.LockExpiresAt) {
		a.Locked = false
	}
	return a, true
}

// Clear removes the artifact. Used on successful connection and on explicit
// session reset.
func (s *Store) Clear() {
	s.mu.Lock()
	s.art = nil
	s.mu.Unlock()
}
