// Package probe checks a started stack from the host side: the database
// accepts connections and keeps its data, the application answers HTTP.
package probe

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// Backoff bounds a probe loop.
type Backoff struct {
	Attempts int
	Interval time.Duration
}

var DefaultBackoff = Backoff{Attempts: 15, Interval: time.Second}

func (b Backoff) do(ctx context.Context, f retry.RetryFunc) error {
	attempts := b.Attempts
	if attempts < 1 {
		attempts = 1
	}
	interval := b.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return retry.Do(ctx, retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(interval)), f)
}
