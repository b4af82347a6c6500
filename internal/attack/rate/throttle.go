package rate

import (
	"context"
	"sync/atomic"
	"time"
)

// Throttle bounds the aggregate request rate with a token channel.
//
// A single refill goroutine (Run) pushes tokens at the configured rate. The
// channel buffers capacity-1 tokens and the refill goroutine holds at most
// one more while it waits for room, so at most capacity tokens are ever
// banked. The pacer is re-anchored at every hand-over, which keeps the
// number of acquisitions in any window W at or below capacity + rate*W.
// Virtual users call Acquire before every request. The throttle only delays
// callers; it never rejects.
//
// A nil *Throttle is valid and disabled: Acquire returns immediately.
type Throttle struct {
	tokens   chan struct{}
	capacity int
	pacer    *Pacer

	acquired atomic.Int64
}

// NewThrottle creates a throttle allowing rate requests per second with at
// most capacity tokens banked. A non-positive rate disables throttling and
// returns nil. Capacity defaults to the rate rounded down (minimum 1).
func NewThrottle(rate float64, capacity int) *Throttle {
	if rate <= 0 {
		return nil
	}
	if capacity <= 0 {
		capacity = int(rate)
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Throttle{
		tokens:   make(chan struct{}, capacity-1),
		capacity: capacity,
		pacer:    NewPacer(rate),
	}
}

// Run refills tokens until ctx is done.
func (t *Throttle) Run(ctx context.Context) {
	if t == nil {
		return
	}
	for {
		if err := t.pacer.Wait(ctx); err != nil {
			return
		}
		select {
		case t.tokens <- struct{}{}:
		default:
			// Bank full: hold this token until a consumer makes room.
			select {
			case t.tokens <- struct{}{}:
			case <-ctx.Done():
				return
			}
		}
		t.pacer.Advance(time.Now())
	}
}

// Acquire blocks until a token is available. It returns ctx.Err() if ctx
// ends first.
func (t *Throttle) Acquire(ctx context.Context) error {
	if t == nil {
		return nil
	}
	select {
	case <-t.tokens:
		t.acquired.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enabled reports whether the throttle limits anything.
func (t *Throttle) Enabled() bool {
	return t != nil
}

// Capacity returns the maximum number of banked tokens.
func (t *Throttle) Capacity() int {
	if t == nil {
		return 0
	}
	return t.capacity
}

// Rate returns the refill rate in tokens per second.
func (t *Throttle) Rate() float64 {
	if t == nil {
		return 0
	}
	return t.pacer.Rate()
}

// Acquired returns the number of tokens handed out so far.
func (t *Throttle) Acquired() int64 {
	if t == nil {
		return 0
	}
	return t.acquired.Load()
}
