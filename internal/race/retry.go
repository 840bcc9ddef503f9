package race

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultRetryInitialInterval is the delay before the first retry.
	DefaultRetryInitialInterval = 2 * time.Second
	// DefaultRetryMaxInterval caps the delay between retries.
	DefaultRetryMaxInterval = time.Minute
)

// BackoffFactory creates a fresh backoff policy. Every side of a loop owns
// its own policy.
type BackoffFactory func() backoff.BackOff

// DefaultBackoff returns an exponential backoff that never gives up.
func DefaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = DefaultRetryInitialInterval
	b.MaxInterval = DefaultRetryMaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// ConstantBackoff returns a factory of policies that always wait d.
func ConstantBackoff(d time.Duration) BackoffFactory {
	return func() backoff.BackOff { return backoff.NewConstantBackOff(d) }
}

// nextDelay returns the next delay of b, falling back to the max interval
// if the policy has given up.
func nextDelay(b backoff.BackOff) time.Duration {
	d := b.NextBackOff()
	if d == backoff.Stop {
		return DefaultRetryMaxInterval
	}
	return d
}
