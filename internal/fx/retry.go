package fx

import (
	"context"
	"math"
	"math/rand"
	"time"
)

type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Multiplier of 1 keeps the delay fixed; above 1 the delay grows per attempt up to MaxDelay.
	Multiplier     float64
	MaxDelay       time.Duration
	JitterFraction float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Delay:       time.Second,
		Multiplier:  1,
		MaxDelay:    10 * time.Second,
	}
}

// backoff returns the wait before the given retry (1 for the first retry).
func (p RetryPolicy) backoff(retry int) time.Duration {
	delay := p.Delay
	if p.Multiplier > 1 && retry > 1 {
		delay = time.Duration(float64(p.Delay) * math.Pow(p.Multiplier, float64(retry-1)))
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if p.JitterFraction <= 0 {
		return delay
	}
	jitterRange := int64(float64(delay) * p.JitterFraction)
	if jitterRange <= 0 {
		return delay
	}
	return delay - time.Duration(jitterRange) + time.Duration(rand.Int63n(2*jitterRange))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
