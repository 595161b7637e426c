package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentkanban/internal/event"
)

// DefaultQueueSize bounds the async queue.
const DefaultQueueSize = 64

// Async delivers events to another sink from a background goroutine. Send
// never blocks: a full queue drops the event. Each delivery is bounded by
// the configured timeout.
type Async struct {
	next    Sink
	timeout time.Duration
	logger  *zap.Logger

	queue chan event.Envelope
	done  chan struct{}

	mu     sync.RWMutex
	closed bool

	dropped atomic.Int64
	failed  atomic.Int64
}

// NewAsync starts the background sender.
func NewAsync(next Sink, queueSize int, timeout time.Duration, logger *zap.Logger) *Async {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan event.Envelope, queueSize),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

// Send implements Sink by enqueueing env.
func (a *Async) Send(_ context.Context, env event.Envelope) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- env:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

func (a *Async) run() {
	defer close(a.done)
	for env := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Send(ctx, env); err != nil {
			a.failed.Add(1)
			a.logger.Debug("event delivery failed",
				zap.String("event_type", string(env.EventType)),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting events and waits until the queue drains or ctx is
// done.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events were refused because the queue was full.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Failed returns how many queued events the downstream sink rejected.
func (a *Async) Failed() int64 { return a.failed.Load() }
