package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultBackoff_Bounds(t *testing.T) {
	// spec.md §8: attempt 1 in [15.3, 18.7]s; attempt 5 in [42.3, 51.7]s.
	d1 := DefaultBackoff(Job{Attempt: 1})
	assert.GreaterOrEqual(t, d1, time.Duration(15.3*float64(time.Second)))
	assert.LessOrEqual(t, d1, time.Duration(18.7*float64(time.Second)))

	d5 := DefaultBackoff(Job{Attempt: 5})
	assert.GreaterOrEqual(t, d5, time.Duration(42.3*float64(time.Second)))
	assert.LessOrEqual(t, d5, time.Duration(51.7*float64(time.Second)))
}

func TestNewBackoff_MaxPower(t *testing.T) {
	fn := NewBackoff(2)
	for _, attempt := range []int{2, 3, 10} {
		d := fn(Job{Attempt: attempt})
		// 15 + 2^2 = 19s, +/-10% jitter.
		assert.GreaterOrEqual(t, d, time.Duration(17.1*float64(time.Second)))
		assert.LessOrEqual(t, d, time.Duration(20.9*float64(time.Second)))
	}
}
