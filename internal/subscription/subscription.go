// Package subscription tracks registered webhook subscribers: which
// endpoint they want events delivered to, which event kinds they care
// about, and the signing secret used for delivery.
package subscription

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/hermod-gw/hermod/internal/event"
)

// Subscriber is a registered external HTTP endpoint. Delivery counters are
// mutated only by the registry's RecordSuccess/RecordFailure; callers may
// only change EndpointURL, Events, Secret and Active through Update.
type Subscriber struct {
	ID              string       `json:"id"`
	EndpointURL     string       `json:"endpoint_url"`
	Events          []event.Kind `json:"events"`
	Secret          string       `json:"secret"`
	Active          bool         `json:"active"`
	CreatedAt       time.Time    `json:"created_at"`
	LastDeliveredAt *time.Time   `json:"last_delivered_at,omitempty"`
	SuccessCount    uint64       `json:"success_count"`
	FailureCount    uint64       `json:"failure_count"`
}

// Subscribes reports whether the subscriber wants events of kind k.
func (s Subscriber) Subscribes(k event.Kind) bool {
	for _, e := range s.Events {
		if e == k {
			return true
		}
	}
	return false
}

// RegisterRequest is the input for Register. Secret is optional; a random
// one is generated when absent.
type RegisterRequest struct {
	EndpointURL string       `json:"endpoint_url"`
	Events      []event.Kind `json:"events"`
	Secret      string       `json:"secret,omitempty"`
	Active      *bool        `json:"active,omitempty"`
}

// UpdateRequest is a partial update; nil fields are left untouched.
type UpdateRequest struct {
	EndpointURL *string      `json:"endpoint_url,omitempty"`
	Events      []event.Kind `json:"events,omitempty"`
	Secret      *string      `json:"secret,omitempty"`
	Active      *bool        `json:"active,omitempty"`
}

func validateEndpointURL(raw string, violations []string) []string {
	u, err := url.Parse(raw)
	if err != nil {
		return append(violations, fmt.Sprintf("endpoint_url %q is not a valid URL", raw))
	}
	if !u.IsAbs() {
		return append(violations, fmt.Sprintf("endpoint_url %q must be absolute", raw))
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return append(violations, fmt.Sprintf("endpoint_url scheme %q must be http or https", u.Scheme))
	}
	if u.Host == "" {
		return append(violations, fmt.Sprintf("endpoint_url %q has no host", raw))
	}
	return violations
}

func validateEvents(kinds []event.Kind, violations []string) []string {
	if len(kinds) == 0 {
		return append(violations, "events must not be empty")
	}
	for _, k := range kinds {
		if !k.Valid() {
			violations = append(violations, fmt.Sprintf("unknown event kind %q", k))
		}
	}
	return violations
}

func newID() string { return uuid.NewString() }

func newSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand should never fail; fall back to a uuid rather than panic
		return uuid.NewString()
	}
	return hex.EncodeToString(b)
}
