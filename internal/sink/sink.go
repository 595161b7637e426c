// Package sink delivers events out of the hook process: to the ingest server
// over HTTP, to NATS subscribers, or straight into the store. Delivery is
// best effort; callers log failures and move on.
package sink

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
)

var (
	// ErrRejected indicates the receiver answered with a non-success status.
	ErrRejected = errors.New("event rejected")

	// ErrQueueFull indicates the async queue dropped the event.
	ErrQueueFull = errors.New("event queue full")

	// ErrClosed indicates the sink no longer accepts events.
	ErrClosed = errors.New("sink closed")
)

// Sink receives event envelopes.
type Sink interface {
	Send(ctx context.Context, env event.Envelope) error
}

// Nop discards every event.
type Nop struct{}

// Send implements Sink.
func (Nop) Send(context.Context, event.Envelope) error { return nil }

// Multi sends each event to every sink in order and joins their errors.
type Multi []Sink

// Send implements Sink.
func (m Multi) Send(ctx context.Context, env event.Envelope) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, env); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
