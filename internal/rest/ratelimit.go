package rest

import (
	"context"
	"time"
)

// Pacer enforces a minimum delay between iterations of cleanup and
// export loops so they do not saturate the service. The REST client's
// semaphore already bounds concurrency; the pacer only spaces calls.
type Pacer struct {
	delay time.Duration
	last  time.Time
}

// NewPacer creates a pacer with the given inter-call floor.
// Delays outside [100ms, 500ms] are clamped into that range; zero or
// negative disables pacing.
func NewPacer(delay time.Duration) *Pacer {
	if delay > 0 {
		if delay < 100*time.Millisecond {
			delay = 100 * time.Millisecond
		}
		if delay > 500*time.Millisecond {
			delay = 500 * time.Millisecond
		}
	}
	return &Pacer{delay: delay}
}

// Wait blocks until the inter-call floor has elapsed since the previous
// Wait, or the context is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p.delay <= 0 {
		return nil
	}
	now := time.Now()
	if !p.last.IsZero() {
		if remaining := p.delay - now.Sub(p.last); remaining > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(remaining):
			}
		}
	}
	p.last = time.Now()
	return nil
}
