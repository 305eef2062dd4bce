// Package scheduler provides a coalescing near-future timer.
//
// A Scheduler fires once after its delay no matter how many times it was
// triggered in the meantime. Several pending flags can share one scheduler;
// each waits for the next fire through OnNextFire.
package scheduler

import (
	"sync"
	"time"

	"github.com/amp-labs/statekeeper/logger"
	"github.com/amp-labs/statekeeper/retry"
)

// Scheduler is a named, reusable, coalescing timer.
type Scheduler struct {
	name         string
	initialDelay time.Duration
	backoff      retry.Backoff
	action       func()

	mutex      sync.Mutex
	timer      *time.Timer
	generation uint64
	armed      bool
	attempt    uint
	fires      uint64
	nextID     uint64
	subs       []subscriber // in registration order
}

type subscriber struct {
	id uint64
	fn func()
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithBackoff stretches the delay of each consecutive fire. The first fire
// after construction or Reset always uses the initial delay.
func WithBackoff(b retry.Backoff) Option {
	return func(s *Scheduler) {
		s.backoff = b
	}
}

// WithAction runs fn on every fire, before one-shot subscribers.
func WithAction(fn func()) Option {
	return func(s *Scheduler) {
		s.action = fn
	}
}

// New returns an idle scheduler.
func New(name string, initialDelay time.Duration, opts ...Option) *Scheduler {
	s := &Scheduler{
		name:         name,
		initialDelay: initialDelay,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the scheduler's name.
func (s *Scheduler) Name() string {
	return s.name
}

// Trigger arms the timer. Triggers while armed are coalesced into the pending fire.
func (s *Scheduler) Trigger() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.armed {
		return
	}

	delay := s.initialDelay
	if s.backoff != nil && s.attempt > 0 {
		delay = s.backoff.Delay(s.attempt)
	}

	s.generation++
	s.armed = true

	gen := s.generation
	s.timer = time.AfterFunc(delay, func() { s.fire(gen) })

	logger.Get().Debug("scheduler armed", "scheduler", s.name, "delay", delay)
}

func (s *Scheduler) fire(gen uint64) {
	s.mutex.Lock()

	if !s.armed || gen != s.generation {
		s.mutex.Unlock()

		return
	}

	s.armed = false
	s.timer = nil
	s.attempt++
	s.fires++

	subs := s.subs
	s.subs = nil
	action := s.action
	s.mutex.Unlock()

	if action != nil {
		action()
	}

	for _, sub := range subs {
		sub.fn()
	}
}

// OnNextFire registers a one-shot callback for the next fire. It does not arm
// the timer. Callbacks run in registration order. The returned function drops
// the callback if it has not run yet.
func (s *Scheduler) OnNextFire(fn func()) (cancel func()) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mutex.Lock()
		defer s.mutex.Unlock()

		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)

				return
			}
		}
	}
}

// Cancel disarms the timer and drops every pending subscriber.
func (s *Scheduler) Cancel() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.armed = false
	s.generation++
	s.subs = nil
}

// Reset makes the next fire use the initial delay again.
func (s *Scheduler) Reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.attempt = 0
}

// Armed reports whether a fire is pending.
func (s *Scheduler) Armed() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.armed
}

// Fires returns how many times the scheduler has fired.
func (s *Scheduler) Fires() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.fires
}
