package tiktok

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy decides whether and when a failed page fetch is retried.
// It holds no state: the caller supplies the attempt count.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	// Jitter is the upper bound of random delay added on top of the
	// computed backoff.
	Jitter time.Duration
}

// DefaultRetryPolicy retries three times starting at 500ms.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries: 3,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   10 * time.Second,
	Multiplier: 2.0,
	Jitter:     250 * time.Millisecond,
}

// RetryDecision is the outcome of RetryPolicy.Next.
type RetryDecision struct {
	Retry bool
	// Rotate asks the caller to move to the next proxy profile.
	Rotate bool
	Delay  time.Duration
}

// Next returns the decision after the attempt-th consecutive failure
// (1-based) of the same request. Fatal errors are never retried. Throttling
// waits twice as long as other transient failures.
func (p RetryPolicy) Next(attempt int, err error) RetryDecision {
	if !IsRetryable(err) || attempt > p.MaxRetries {
		return RetryDecision{}
	}

	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1)))
	if KindOf(err) == KindThrottled {
		delay *= 2
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return RetryDecision{Retry: true, Rotate: true, Delay: delay}
}

// withJitter adds up to p.Jitter of random delay.
func (p RetryPolicy) withJitter(d time.Duration) time.Duration {
	if p.Jitter <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(int64(p.Jitter)))
}
