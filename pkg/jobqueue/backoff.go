package jobqueue

import (
	"math"
	"math/rand/v2"
	"time"
)

// defaultMaxPower bounds the exponent in the default backoff formula so
// that very high attempt counts don't overflow into absurd delays.
const defaultMaxPower = 10

// BackoffFunc computes the retry delay for a job that just failed.
// Worker.Backoff, when set, overrides DefaultBackoff.
type BackoffFunc func(job Job) time.Duration

// DefaultBackoff implements the formula from spec.md §4.4:
//
//	delay_seconds = 15 + 2^min(attempt, 10)
//
// multiplied by a uniform jitter of 1 ± 0.1.
func DefaultBackoff(job Job) time.Duration {
	return backoffWithJitter(job.Attempt, defaultMaxPower)
}

// NewBackoff returns a BackoffFunc using the same formula as
// DefaultBackoff but with a caller-supplied exponent ceiling, matching
// spec.md §8's "With maxPower=2, any attempt >= 2 produces a delay based
// on 2^2 = 4" boundary case.
func NewBackoff(maxPower int) BackoffFunc {
	return func(job Job) time.Duration {
		return backoffWithJitter(job.Attempt, maxPower)
	}
}

func backoffWithJitter(attempt, maxPower int) time.Duration {
	pow := attempt
	if pow > maxPower {
		pow = maxPower
	}
	if pow < 0 {
		pow = 0
	}
	seconds := 15 + math.Pow(2, float64(pow))
	jitter := 1 + (rand.Float64()*2-1)*0.1 // uniform in [0.9, 1.1]
	return time.Duration(seconds * jitter * float64(time.Second))
}
