package ledger

import (
	"context"
	"math/rand/v2"
	"time"
)

const maxBackoff = time.Second

// backoff returns a jittered exponential delay for the given zero-based
// retry: a random duration in [d/2, d] where d = base * 2^retry, capped.
func backoff(base time.Duration, retry int) time.Duration {
	if base <= 0 {
		return 0
	}
	d := base << min(retry, 16)
	if d <= 0 || d > maxBackoff {
		d = maxBackoff
	}
	half := d / 2
	return half + rand.N(half+1)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
