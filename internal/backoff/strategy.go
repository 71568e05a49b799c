package backoff

import (
	"context"
	"math/rand"
	"time"
)

// DefaultJitter is the upper bound of the random fraction added on top of a delay.
const DefaultJitter = 0.2

// Strategy computes the wait before the next attempt. Attempts are 1-based:
// attempt 1 is the wait after the first failed call.
type Strategy interface {
	Delay(attempt int, base, max time.Duration) time.Duration
}

// ExponentialJitterStrategy doubles the base delay per attempt, caps it at max and
// then adds up to Jitter*delay of random extra wait. Jitter is never subtracted, so
// the result may exceed max by at most the jitter fraction.
type ExponentialJitterStrategy struct {
	Jitter float64
	// Rand returns a value in [0, 1). Nil uses math/rand.
	Rand func() float64
}

// NewExponentialJitter returns the default strategy with 20% additive jitter.
func NewExponentialJitter() ExponentialJitterStrategy {
	return ExponentialJitterStrategy{Jitter: DefaultJitter}
}

// Delay implements Strategy.
func (s ExponentialJitterStrategy) Delay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	// 2^30 * base already overflows any sane cap.
	if attempt > 30 {
		attempt = 30
	}

	delay := time.Duration(float64(base) * pow(2, attempt-1))
	if delay < 0 || (max > 0 && delay > max) {
		delay = max
	}

	jitter := clampJitter(s.Jitter)
	if jitter > 0 {
		r := s.Rand
		if r == nil {
			r = rand.Float64
		}
		delay += time.Duration(float64(delay) * jitter * r())
	}
	return delay
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns the
// context error when the wait was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func clampJitter(jitter float64) float64 {
	if jitter < 0 {
		return 0
	}
	if jitter > 1 {
		return 1
	}
	return jitter
}

func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
