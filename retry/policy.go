package retry

import "time"

// Policy decides how long to wait before retrying a failed operation.
type Policy struct {
	Backoff Backoff
	Jitter  Jitter
	// MinDelay is a floor applied after jitter.
	MinDelay time.Duration
}

// Delay returns the jittered, floored delay for the zero-indexed attempt.
func (p Policy) Delay(attempt uint) time.Duration {
	var d time.Duration

	if p.Backoff != nil {
		d = p.Jitter.Apply(p.Backoff.Delay(attempt))
	}

	if d < p.MinDelay {
		d = p.MinDelay
	}

	return d
}
