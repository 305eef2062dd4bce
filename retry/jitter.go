package retry

import (
	"math/rand"
	"time"
)

// Jitter is the share of a delay that is randomized.
//   - 0 or negative: the delay is used as is
//   - 0.5: half fixed, half random
//   - 1: uniformly random in [0, delay)
type Jitter float64

const (
	EqualJitter   Jitter = 0.5
	FullJitter    Jitter = 1.0
	WithoutJitter Jitter = -1.0
)

// Apply randomizes d according to the jitter share.
func (j Jitter) Apply(d time.Duration) time.Duration {
	if j <= 0.0 || d <= 0 {
		return d
	}

	share := float64(j)
	if share > 1.0 {
		share = 1.0
	}

	//nolint:gosec // G404: math/rand is sufficient for jitter
	r := rand.Float64() * float64(d)

	return time.Duration(share*r + (1.0-share)*float64(d))
}
