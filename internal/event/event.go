package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies a domain event. The vocabulary is closed: subscription
// validation rejects anything outside it.
type Kind string

const (
	KindMessageReceived      Kind = "message.received"
	KindMessageStatus        Kind = "message.status"
	KindPairingIssued        Kind = "pairing.issued"
	KindSessionReady         Kind = "session.ready"
	KindSessionClosed        Kind = "session.closed"
	KindSessionAuthenticated Kind = "session.authenticated"
	KindSessionAuthFailed    Kind = "session.auth_failed"
)

// Kinds lists every valid event kind in a stable order.
func Kinds() []Kind {
	return []Kind{
		KindMessageReceived,
		KindMessageStatus,
		KindPairingIssued,
		KindSessionReady,
		KindSessionClosed,
		KindSessionAuthenticated,
		KindSessionAuthFailed,
	}
}

// Valid reports whether k belongs to the closed vocabulary.
func (k Kind) Valid() bool {
	switch k {
	case KindMessageReceived, KindMessageStatus, KindPairingIssued,
		KindSessionReady, KindSessionClosed, KindSessionAuthenticated,
		KindSessionAuthFailed:
		return true
	}
	return false
}

// Parse converts s into a Kind or fails if it is outside the vocabulary.
func Parse(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown event kind %q", s)
	}
	return k, nil
}

// Event is a normalized, typed notification derived from raw transport
// notifications. Data is kind-specific and already JSON-encodable.
type Event struct {
	Kind       Kind            `json:"event"`
	Data       json.RawMessage `json:"data"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// New builds an Event with the current time and a JSON-marshaled payload.
// Payloads that fail to marshal degrade to a null body rather than dropping
// the event.
func New(kind Kind, payload any) Event {
	b, err := json.Marshal(payload)
	if err != nil {
		b = []byte("null")
	}
	return Event{Kind: kind, Data: b, OccurredAt: time.Now().UTC()}
}
