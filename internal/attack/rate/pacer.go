// Package rate caps the aggregate request rate of an attack.
package rate

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces token hand-overs at least one interval apart.
//
// The next token is due one interval after the previous hand-over, as
// reported through Advance. A producer that was blocked or woke up late
// therefore never catches up with a burst: lost slots are gone.
//
// Pacer is safe for concurrent use.
type Pacer struct {
	rate     float64 // tokens per second
	interval time.Duration
	due      time.Time
	mu       sync.Mutex
}

// NewPacer creates a pacer producing rate tokens per second. Non-positive
// rates default to 1. The first token is due one interval from now.
func NewPacer(rate float64) *Pacer {
	if rate <= 0 {
		rate = 1.0
	}
	interval := time.Duration(float64(time.Second) / rate)
	return &Pacer{
		rate:     rate,
		interval: interval,
		due:      time.Now().Add(interval),
	}
}

// Next returns when the next token is due. The returned time may be in the
// past, in which case the token is due immediately.
func (p *Pacer) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.due
}

// Advance records that a token was handed over at t. The following token is
// due one interval later.
func (p *Pacer) Advance(t time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.due = t.Add(p.interval)
}

// Wait blocks until the next token is due or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	wait := time.Until(p.Next())
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Interval returns the minimum spacing between two tokens.
func (p *Pacer) Interval() time.Duration {
	return p.interval
}

// Rate returns the configured rate in tokens per second.
func (p *Pacer) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}
