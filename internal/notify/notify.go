// Package notify delivers claim transitions to external notification
// consumers. Delivery is best effort and never blocks the caller.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirinyoku/openmic/internal/domain"
)

type Notifier interface {
	Notify(ctx context.Context, ev domain.ClaimEvent) error
}

type Nop struct{}

func (Nop) Notify(context.Context, domain.ClaimEvent) error { return nil }

// Async buffers events and hands them to the wrapped Notifier on a single
// background goroutine. When the buffer is full, or after Close, the event
// is dropped.
type Async struct {
	next    Notifier
	logger  *slog.Logger
	timeout time.Duration
	queue   chan domain.ClaimEvent
	done    chan struct{}
	once    sync.Once

	mu     sync.RWMutex
	closed bool
}

func NewAsync(next Notifier, logger *slog.Logger, buffer int) *Async {
	if buffer <= 0 {
		buffer = 256
	}

	a := &Async{
		next:    next,
		logger:  logger,
		timeout: 5 * time.Second,
		queue:   make(chan domain.ClaimEvent, buffer),
		done:    make(chan struct{}),
	}

	go a.loop()

	return a
}

// Notify enqueues ev. It always returns nil.
func (a *Async) Notify(_ context.Context, ev domain.ClaimEvent) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn("notification dropped, notifier closed",
			"claim_id", ev.ClaimID, "to", ev.To)
		return nil
	}

	select {
	case a.queue <- ev:
	default:
		a.logger.Warn("notification dropped, buffer full",
			"claim_id", ev.ClaimID, "to", ev.To)
	}
	return nil
}

func (a *Async) loop() {
	defer close(a.done)

	for ev := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Notify(ctx, ev); err != nil {
			a.logger.Warn("notification failed",
				"claim_id", ev.ClaimID, "to", ev.To, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for the queue to drain.
func (a *Async) Close() {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	<-a.done
}
