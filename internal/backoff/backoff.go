package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Policy is the shared exponential backoff schedule: Base, 2*Base, 4*Base...
// capped at Max, with up to 25% jitter. The production defaults give the
// 1s, 2s, 4s, 8s ladder.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Max         time.Duration
	Jitter      bool
}

func Default() Policy {
	return Policy{MaxAttempts: 3, Base: time.Second, Max: 8 * time.Second, Jitter: true}
}

// Delay returns the wait before retry number attempt (0-indexed).
func (p Policy) Delay(attempt int) time.Duration {
	d := p.Base << attempt
	if p.Max > 0 && d > p.Max {
		d = p.Max
	}
	if p.Jitter {
		d += time.Duration(rand.Int63n(int64(d)/4 + 1))
	}
	return d
}

// Do runs fn, retrying on errors for which retryable returns true, up to
// MaxAttempts retries (MaxAttempts+1 calls total). The last error is
// returned unwrapped so callers can classify it with errors.Is.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var last error
	for attempt := 0; ; attempt++ {
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if !retryable(last) || attempt >= p.MaxAttempts {
			return last
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt)):
		}
	}
}
