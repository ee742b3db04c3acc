package registration

import (
	"context"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// DefaultRetryInterval is the wait between failed registration attempts.
const DefaultRetryInterval = 30 * time.Second

// RetryPolicy is a fixed-interval retry schedule.
type RetryPolicy struct {
	// Interval between attempts. It does not grow.
	Interval time.Duration

	// MaxAttempts caps the number of attempts. 0 retries until success or
	// cancellation.
	MaxAttempts int
}

// Do runs fn until it succeeds, the attempts are exhausted or ctx is done.
// onRetry, if set, is called after each failed attempt with its 1-based
// number. A cancelled context returns ctx.Err().
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt uint, err error)) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	attempts := uint(0)
	if p.MaxAttempts > 0 {
		attempts = uint(p.MaxAttempts)
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(interval),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	}
	if onRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) { onRetry(n+1, err) }))
	}

	err := retry.Do(func() error { return fn(ctx) }, opts...)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
