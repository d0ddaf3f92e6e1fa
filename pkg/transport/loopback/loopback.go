// Package loopback provides an in-process transport that simulates a
// messaging backend: first connect walks the pairing flow, later connects go
// straight to open, and every sent message is acknowledged with a receipt.
// It backs local development and embedding examples; production deployments
// plug in a real backend instead.
package loopback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hermod-gw/hermod/internal/session"
)

// Transport implements session.Transport against no network at all.
type Transport struct {
	mu       sync.Mutex
	paired   bool
	open     bool
	closed   bool
	identity string
	notifs   chan session.Notification
}

var _ session.Transport = (*Transport)(nil)

// New creates a loopback transport. identity is the account identity reported
// after pairing.
func New(identity string) *Transport {
	if identity == "" {
		identity = "loopback:0000"
	}
	return &Transport{
		identity: identity,
		notifs:   make(chan session.Notification, 16),
	}
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return fmt.Errorf("loopback transport closed")
	}
	if t.open {
		return nil
	}
	t.emit(session.Notification{Type: session.NotificationStateChange, State: session.ConnStateConnecting})
	if !t.paired {
		t.emit(session.Notification{
			Type:         session.NotificationPairingChallenge,
			PairingToken: uuid.NewString(),
		})
		creds, _ := json.Marshal(map[string]string{"session": uuid.NewString()})
		t.emit(session.Notification{
			Type:        session.NotificationCredentialUpdate,
			Credentials: creds,
			Identity:    t.identity,
		})
		t.paired = true
	}
	t.open = true
	t.emit(session.Notification{Type: session.NotificationStateChange, State: session.ConnStateOpen})
	return nil
}

func (t *Transport) Logout(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.paired = false
	t.open = false
	return nil
}

// SendMessage accepts any payload and echoes a delivery receipt.
func (t *Transport) SendMessage(ctx context.Context, recipient string, payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open {
		return fmt.Errorf("not connected")
	}
	t.emit(session.Notification{
		Type: session.NotificationInboundMessage,
		Inbound: &session.Inbound{
			Kind:    session.InboundReceipt,
			From:    recipient,
			ID:      uuid.NewString(),
			Payload: payload,
		},
	})
	return nil
}

func (t *Transport) IsRegisteredRecipient(ctx context.Context, recipient string) (bool, error) {
	return recipient != "", nil
}

func (t *Transport) Notifications() <-chan session.Notification { return t.notifs }

// Drop simulates an unexpected disconnect with the given status code.
func (t *Transport) Drop(statusCode int, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = false
	t.emit(session.Notification{
		Type:        session.NotificationStateChange,
		State:       session.ConnStateClose,
		StatusCode:  statusCode,
		CloseReason: reason,
	})
}

// Inject feeds an inbound message, as if a peer had sent one.
func (t *Transport) Inject(from string, payload []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.emit(session.Notification{
		Type: session.NotificationInboundMessage,
		Inbound: &session.Inbound{
			Kind:    session.InboundMessage,
			From:    from,
			ID:      uuid.NewString(),
			Payload: payload,
		},
	})
}

// Close shuts the notification stream down.
func (t *Transport) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.notifs)
}

func (t *Transport) emit(n session.Notification) {
	select {
	case t.notifs <- n:
	case <-time.After(time.Second):
	}
}
