// Package watcher lets callers wait for a machine to arrive at one of several states.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"
)

var (
	// ErrTimeout resolves a watcher whose timeout elapsed before any watched state was reached.
	ErrTimeout = errors.New("watcher timed out")
	// ErrNotResolved is returned by Result while the watcher is still pending.
	ErrNotResolved = errors.New("watcher not resolved")
)

// Watcher resolves exactly once: on arrival at a success state (nil error), on
// arrival at a fail state (the mapped error), on forced completion, or on timeout.
type Watcher[S comparable] struct {
	name    string
	id      uuid.UUID
	success map[S]struct{}
	fail    map[S]error
	timeout time.Duration

	resolved *atomic.Bool
	err      error
	state    S
	done     chan struct{}

	timerMutex sync.Mutex
	timer      *time.Timer
}

// Option configures a Watcher.
type Option[S comparable] func(*Watcher[S])

// WithSuccess adds states that resolve the watcher without error.
func WithSuccess[S comparable](states ...S) Option[S] {
	return func(w *Watcher[S]) {
		for _, s := range states {
			w.success[s] = struct{}{}
		}
	}
}

// WithFailure resolves the watcher with err on arrival at state.
func WithFailure[S comparable](state S, err error) Option[S] {
	return func(w *Watcher[S]) {
		w.fail[state] = err
	}
}

// WithTimeout resolves the watcher with ErrTimeout if nothing else resolved it
// within d of registration. Zero means no timeout.
func WithTimeout[S comparable](d time.Duration) Option[S] {
	return func(w *Watcher[S]) {
		w.timeout = d
	}
}

// New returns a pending watcher.
func New[S comparable](name string, opts ...Option[S]) *Watcher[S] {
	w := &Watcher[S]{
		name:     name,
		id:       uuid.New(),
		success:  make(map[S]struct{}),
		fail:     make(map[S]error),
		resolved: atomic.NewBool(false),
		done:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

func (w *Watcher[S]) Name() string {
	return w.name
}

func (w *Watcher[S]) ID() uuid.UUID {
	return w.id
}

func (w *Watcher[S]) Timeout() time.Duration {
	return w.timeout
}

func (w *Watcher[S]) String() string {
	return fmt.Sprintf("%s[%s]", w.name, w.id)
}

// Matches reports whether arriving at state would resolve the watcher, and with what.
func (w *Watcher[S]) Matches(state S) (bool, error) {
	if _, ok := w.success[state]; ok {
		return true, nil
	}

	if err, ok := w.fail[state]; ok {
		return true, err
	}

	return false, nil
}

// arrive resolves the watcher if state is watched. It reports whether this call resolved it.
func (w *Watcher[S]) arrive(state S) bool {
	matched, err := w.Matches(state)
	if !matched {
		return false
	}

	return w.resolve(state, err)
}

// resolve is first-wins; later calls are ignored.
func (w *Watcher[S]) resolve(state S, err error) bool {
	if !w.resolved.CompareAndSwap(false, true) {
		return false
	}

	w.err = err
	w.state = state
	close(w.done)

	w.timerMutex.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMutex.Unlock()

	return true
}

// CompleteWithErrorIfPending resolves a still-pending watcher with err. It
// returns false, leaving the earlier result in place, if the watcher had already resolved.
func (w *Watcher[S]) CompleteWithErrorIfPending(err error) bool {
	var zero S

	return w.resolve(zero, err)
}

func (w *Watcher[S]) armTimeout() {
	if w.timeout <= 0 {
		return
	}

	w.timerMutex.Lock()
	defer w.timerMutex.Unlock()

	if w.timer != nil || w.resolved.Load() {
		return
	}

	w.timer = time.AfterFunc(w.timeout, func() {
		w.CompleteWithErrorIfPending(fmt.Errorf("%w: %s after %s", ErrTimeout, w.name, w.timeout))
	})
}

// Resolved reports whether the watcher has resolved.
func (w *Watcher[S]) Resolved() bool {
	return w.resolved.Load()
}

// Done is closed once the watcher resolves.
func (w *Watcher[S]) Done() <-chan struct{} {
	return w.done
}

// Err returns the resolution error. It is nil while pending.
func (w *Watcher[S]) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Result returns the state that resolved the watcher (the zero value for
// forced completion and timeout) and its error, or ErrNotResolved while pending.
func (w *Watcher[S]) Result() (S, error) {
	select {
	case <-w.done:
		return w.state, w.err
	default:
		var zero S

		return zero, ErrNotResolved
	}
}

// Wait blocks until the watcher resolves or ctx is done.
func (w *Watcher[S]) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
