package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Publisher enqueues messages.
type Publisher interface {
	Enqueue(ctx context.Context, msgType, id string, payload interface{}) error
}

// QueueConfig contains the configuration for the queue.
type QueueConfig struct {
	Workers    int           // number of consumers; 0 makes a publish-only queue
	RetryLimit int           // retries after the first attempt
	RetryDelay time.Duration // delay before a retry becomes visible
	PollEvery  time.Duration // retry set scan interval
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// ParsePayload decodes a message payload into T.
func ParsePayload[T any](msg Message) (*T, error) {
	var out T
	if len(msg.Payload) == 0 {
		return nil, fmt.Errorf("message %s has no payload", msg.ID)
	}
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", msg.Type, err)
	}
	return &out, nil
}

type step int

const (
	stepDone step = iota
	stepRetry
	stepDeadLetter
	stepRequeue
)

// nextStep decides what happens to msg after an attempt that returned err.
func nextStep(msg Message, err error, retryLimit int) step {
	switch {
	case err == nil:
		return stepDone
	case errors.Is(err, context.Canceled):
		// shutdown; put it back without charging an attempt
		return stepRequeue
	case IsPermanent(err):
		return stepDeadLetter
	case msg.Attempts < retryLimit:
		return stepRetry
	default:
		return stepDeadLetter
	}
}
