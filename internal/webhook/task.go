package webhook

import (
	"encoding/json"
	"time"

	"github.com/hermod-gw/hermod/internal/event"
)

// Task is one pending delivery of one event to one subscriber. Tasks live
// only in the pipeline's in-memory queue: a process restart drops them.
type Task struct {
	SubscriberID string
	EventKind    event.Kind
	Body         []byte // serialized wire payload, signed as-is
	Attempt      int
	EnqueuedAt   time.Time
}

// wirePayload is the JSON body POSTed to subscriber endpoints.
type wirePayload struct {
	Event     event.Kind      `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
}

func encodeWirePayload(e event.Event) []byte {
	b, err := json.Marshal(wirePayload{
		Event:     e.Kind,
		Data:      e.Data,
		Timestamp: e.OccurredAt.UnixMilli(),
	})
	if err != nil {
		// Data is json.RawMessage produced by event.New; this cannot fail
		// for well-formed events, but a null body beats losing the task.
		b = []byte(`{"event":"` + string(e.Kind) + `","data":null}`)
	}
	return b
}
