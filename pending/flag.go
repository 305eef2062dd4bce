// Package pending defers flags until their gating criteria hold.
//
// A pending Flag may wait for a delay, for a conjunction of named signals, for
// the next fire of a coalescing scheduler, or any combination. Every gate must
// be open at once for the flag to be promoted into the live flag set.
package pending

import (
	"fmt"
	"strings"
	"time"

	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/scheduler"
)

// Flag is a deferred flag registration.
type Flag struct {
	Flag       flags.Flag
	Delay      time.Duration
	Conditions []string
	Scheduler  *scheduler.Scheduler
}

// Option configures a Flag.
type Option func(*Flag)

// WithDelay holds the flag back until d has elapsed since registration.
func WithDelay(d time.Duration) Option {
	return func(f *Flag) {
		f.Delay = d
	}
}

// WithConditions holds the flag back until all named signals read true together.
func WithConditions(names ...string) Option {
	return func(f *Flag) {
		f.Conditions = append(f.Conditions, names...)
	}
}

// WithScheduler holds the flag back until the scheduler next fires.
func WithScheduler(s *scheduler.Scheduler) Option {
	return func(f *Flag) {
		f.Scheduler = s
	}
}

// New builds a pending flag.
func New(flag flags.Flag, opts ...Option) Flag {
	f := Flag{Flag: flag}

	for _, opt := range opts {
		opt(&f)
	}

	return f
}

func (f Flag) String() string {
	var gates []string

	if f.Delay > 0 {
		gates = append(gates, "delay="+f.Delay.String())
	}

	if len(f.Conditions) > 0 {
		gates = append(gates, "conditions="+strings.Join(f.Conditions, "&"))
	}

	if f.Scheduler != nil {
		gates = append(gates, "scheduler="+f.Scheduler.Name())
	}

	if len(gates) == 0 {
		return string(f.Flag)
	}

	return fmt.Sprintf("%s(%s)", f.Flag, strings.Join(gates, ","))
}

// Registrar accepts pending flags.
type Registrar interface {
	RegisterPending(flag Flag)
}
