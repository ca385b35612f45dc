// Package backoff implements capped exponential backoff with jitter,
// shared by the worker pool's download retries and the listener's
// reconnection loop.
package backoff

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy is capped exponential backoff: base delay doubling each attempt,
// capped at a ceiling, with up to 20% jitter so a fleet retrying together
// does not thunder in lockstep.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// Default returns the standard policy: 1s base, 60s cap.
func Default() Policy {
	return Policy{Base: time.Second, Cap: 60 * time.Second}
}

// Delay returns the wait duration before retry attempt n (1-indexed): the
// doubled base delay plus up to 20% extra jitter.
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Base << (attempt - 1)
	if d <= 0 || d > p.Cap { // overflow or exceeded ceiling
		d = p.Cap
	}
	jitter := time.Duration(rand.Int64N(int64(d)/5 + 1))
	return d + jitter
}

// Sleep waits out one backoff interval or returns early if ctx is done.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	t := time.NewTimer(p.Delay(attempt))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
