// Package latch provides a single-fulfillment broadcast gate.
//
// A Latch starts unfulfilled. Fulfill closes it exactly once, releasing every
// current and future waiter. A fulfilled latch is never reset; code that needs
// a fresh gate installs a new Latch instead. Each latch carries a generation
// number so owners can tell successive instances apart.
package latch

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// Latch is a one-shot broadcast condition. The zero value is not usable; use New.
type Latch struct {
	generation uint64
	once       sync.Once
	done       chan struct{}
	fulfilled  *atomic.Bool
	at         *atomic.Time
}

// New returns an unfulfilled latch with generation 0.
func New() *Latch {
	return NewGeneration(0)
}

// NewGeneration returns an unfulfilled latch tagged with the given generation.
func NewGeneration(generation uint64) *Latch {
	return &Latch{
		generation: generation,
		done:       make(chan struct{}),
		fulfilled:  atomic.NewBool(false),
		at:         atomic.NewTime(time.Time{}),
	}
}

// Fulfilled returns a latch that has already been fulfilled.
func Fulfilled(generation uint64) *Latch {
	l := NewGeneration(generation)
	l.Fulfill()

	return l
}

// Generation returns the generation tag assigned at construction.
func (l *Latch) Generation() uint64 {
	return l.generation
}

// Fulfill opens the latch. It reports true only for the call that actually
// fulfilled it; later calls are no-ops and return false.
func (l *Latch) Fulfill() bool {
	won := false

	l.once.Do(func() {
		l.at.Store(time.Now())
		l.fulfilled.Store(true)
		close(l.done)

		won = true
	})

	return won
}

// IsFulfilled reports whether Fulfill has been called.
func (l *Latch) IsFulfilled() bool {
	return l.fulfilled.Load()
}

// FulfilledAt returns the time the latch was fulfilled, or the zero time.
func (l *Latch) FulfilledAt() time.Time {
	return l.at.Load()
}

// Done returns a channel that is closed once the latch is fulfilled.
func (l *Latch) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until the latch is fulfilled or the timeout elapses, and reports
// whether it was fulfilled. A non-positive timeout only polls.
func (l *Latch) Wait(timeout time.Duration) bool {
	if l.IsFulfilled() {
		return true
	}

	if timeout <= 0 {
		return false
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-l.done:
		return true
	case <-timer.C:
		return false
	}
}

// WaitContext blocks until the latch is fulfilled or ctx is done.
func (l *Latch) WaitContext(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	default:
	}

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
