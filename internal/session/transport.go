package session

import (
	"context"
	"encoding/json"
)

// NotificationType enumerates the raw notification kinds a transport emits.
type NotificationType int

const (
	NotificationPairingChallenge NotificationType = iota
	NotificationStateChange
	NotificationCredentialUpdate
	NotificationInboundMessage
)

// ConnState is the transport-level connection phase carried by a
// state-change notification.
type ConnState string

const (
	ConnStateOpen       ConnState = "open"
	ConnStateClose      ConnState = "close"
	ConnStateConnecting ConnState = "connecting"
)

// Disconnect status codes the transport is expected to expose. Anything not
// listed here is classified as transient.
const (
	StatusLoggedOut       = 401
	StatusSessionConflict = 440
)

// InboundKind distinguishes fresh messages from delivery receipts inside an
// inbound-message notification.
type InboundKind string

const (
	InboundMessage InboundKind = "message"
	InboundReceipt InboundKind = "receipt"
)

// Inbound is an incoming message or receipt from the messaging network.
type Inbound struct {
	Kind    InboundKind     `json:"kind"`
	From    string          `json:"from"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Notification is a single raw event from the transport. Only the fields
// relevant to Type are populated.
type Notification struct {
	Type         NotificationType
	PairingToken string    // pairing-challenge
	State        ConnState // state-change
	StatusCode   int       // state-change close: machine-readable cause
	CloseReason  string    // state-change close: human-readable cause
	Credentials  []byte    // credential-update: opaque credential blob
	Identity     string    // credential-update: account identity (e.g. number)
	Inbound      *Inbound  // inbound-message
}

// Transport is the opaque session/transport implementation (pairing,
// encryption, socket framing). It delivers notifications sequentially on a
// single channel; the manager is the only consumer.
type Transport interface {
	// Connect asks the transport to establish a session. Notifications
	// (pairing challenges, state changes) flow asynchronously afterwards.
	Connect(ctx context.Context) error

	// Logout invalidates the session server-side.
	Logout(ctx context.Context) error

	// SendMessage delivers payload to recipient over the live session.
	SendMessage(ctx context.Context, recipient string, payload []byte) error

	// IsRegisteredRecipient reports whether recipient exists on the
	// messaging network.
	IsRegisteredRecipient(ctx context.Context, recipient string) (bool, error)

	// Notifications returns the transport's event stream. The channel is
	// owned by the transport and closed when the transport shuts down.
	Notifications() <-chan Notification
}

// CredentialStore persists session credentials across restarts.
type CredentialStore interface {
	Save(creds []byte) error
	Clear() error
}
