package queue

import (
	"context"
	"encoding/json"
)

// Job handles one message type.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type the job consumes.
	Type() string

	// Handle processes one payload. Returning a Permanent error skips retries.
	Handle(ctx context.Context, msg Message) error
}

// DeadLetterFunc is called once a message will not be attempted again.
type DeadLetterFunc func(ctx context.Context, msg Message, err error)

// Message is the unit stored in the queue.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp int64           `json:"ts"`
	LastError string          `json:"last_error,omitempty"`
}
