// Package retry holds the delay policies used when an operation is retried:
// exponential backoff, jitter, and a Policy combining them with a floor.
package retry

import (
	"math"
	"time"
)

// Backoff calculates the delay before a retry attempt.
type Backoff interface {
	// Delay returns the wait before attempt; attempt is zero-indexed.
	Delay(attempt uint) time.Duration
}

// ExpBackoff grows as Base * Factor^attempt, clamped to [Base, Max].
//
//	retry.ExpBackoff{Base: time.Second, Max: time.Minute, Factor: 2}
//	// 1s, 2s, 4s, 8s, ... 1m
type ExpBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Factor float64
}

func (b ExpBackoff) Delay(attempt uint) time.Duration {
	f := float64(b.Base) * math.Pow(b.Factor, float64(attempt))

	d := time.Duration(f)
	if d < b.Base {
		return b.Base
	} else if b.Max > 0 && d > b.Max {
		return b.Max
	}

	return d
}

// FixedBackoff always waits the same amount.
type FixedBackoff time.Duration

func (b FixedBackoff) Delay(uint) time.Duration {
	return time.Duration(b)
}
