package client

import (
	"encoding/json"
	"fmt"
	"time"
)

// SessionStatus mirrors the daemon's /status response.
type SessionStatus struct {
	State         string     `json:"state"`
	Attempts      int        `json:"reconnect_attempts"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	Identity      string     `json:"identity,omitempty"`
}

// PairingArtifact mirrors the daemon's /pairing response.
type PairingArtifact struct {
	Token         string    `json:"token"`
	IssuedAt      time.Time `json:"issued_at"`
	Locked        bool      `json:"locked"`
	LockExpiresAt time.Time `json:"lock_expires_at,omitempty"`
}

// SendRequest asks the daemon to send a message.
type SendRequest struct {
	Recipient string          `json:"recipient"`
	Payload   json.RawMessage `json:"payload"`
}

// BroadcastRequest asks the daemon to send one payload to many recipients.
type BroadcastRequest struct {
	Recipients []string        `json:"recipients"`
	Payload    json.RawMessage `json:"payload"`
}

// BroadcastReport mirrors the daemon's /broadcast response.
type BroadcastReport struct {
	Sent   []string          `json:"sent"`
	Failed map[string]string `json:"failed,omitempty"`
}

// SubscriberRequest registers a webhook subscriber.
type SubscriberRequest struct {
	EndpointURL string   `json:"endpoint_url"`
	Events      []string `json:"events"`
	Secret      string   `json:"secret,omitempty"`
}

// SubscriberUpdate carries a partial update. Nil fields keep their current
// value.
type SubscriberUpdate struct {
	EndpointURL *string  `json:"endpoint_url,omitempty"`
	Events      []string `json:"events,omitempty"`
	Secret      *string  `json:"secret,omitempty"`
	Active      *bool    `json:"active,omitempty"`
}

// Subscriber mirrors the daemon's subscriber representation.
type Subscriber struct {
	ID              string     `json:"id"`
	EndpointURL     string     `json:"endpoint_url"`
	Events          []string   `json:"events"`
	Secret          string     `json:"secret"`
	Active          bool       `json:"active"`
	CreatedAt       time.Time  `json:"created_at"`
	LastDeliveredAt *time.Time `json:"last_delivered_at,omitempty"`
	SuccessCount    uint64     `json:"success_count"`
	FailureCount    uint64     `json:"failure_count"`
}

// BreakerState mirrors the pipeline's circuit breaker snapshot.
type BreakerState struct {
	Open                bool       `json:"open"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
}

// PipelineStats mirrors the daemon's /stats response.
type PipelineStats struct {
	QueueDepth  int          `json:"queue_depth"`
	Breaker     BreakerState `json:"breaker"`
	Subscribers []Subscriber `json:"subscribers"`
}

// APIError is a structured error response from the daemon.
type APIError struct {
	StatusCode int      `json:"-"`
	Message    string   `json:"error"`
	Violations []string `json:"violations,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}
