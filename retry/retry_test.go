package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpBackoff(t *testing.T) {
	t.Parallel()

	b := ExpBackoff{Base: 100 * time.Millisecond, Max: time.Second, Factor: 2}

	tests := []struct {
		attempt uint
		want    time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{20, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExpBackoff_Uncapped(t *testing.T) {
	t.Parallel()

	b := ExpBackoff{Base: time.Second, Factor: 3}

	assert.Equal(t, 9*time.Second, b.Delay(2))
}

func TestJitter(t *testing.T) {
	t.Parallel()

	d := 10 * time.Second

	assert.Equal(t, d, WithoutJitter.Apply(d))
	assert.Equal(t, d, Jitter(0).Apply(d))

	for range 100 {
		got := EqualJitter.Apply(d)
		assert.GreaterOrEqual(t, got, d/2)
		assert.LessOrEqual(t, got, d)

		got = FullJitter.Apply(d)
		assert.GreaterOrEqual(t, got, time.Duration(0))
		assert.Less(t, got, d)
	}
}

func TestPolicy(t *testing.T) {
	t.Parallel()

	p := Policy{
		Backoff:  ExpBackoff{Base: 5 * time.Second, Max: 10 * time.Second, Factor: 2},
		Jitter:   EqualJitter,
		MinDelay: 4 * time.Second,
	}

	for attempt := range uint(5) {
		got := p.Delay(attempt)
		assert.GreaterOrEqual(t, got, 4*time.Second)
		assert.LessOrEqual(t, got, 10*time.Second)
	}

	assert.Equal(t, time.Second, Policy{MinDelay: time.Second}.Delay(0))
	assert.Equal(t, 2*time.Second, Policy{Backoff: FixedBackoff(2 * time.Second)}.Delay(7))
}
