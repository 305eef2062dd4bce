package pending

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/scheduler"
	"github.com/amp-labs/statekeeper/signals"
)

var (
	// ErrUnknownCondition is returned when a pending flag names a signal the evaluator does not know.
	ErrUnknownCondition = errors.New("unknown pending flag condition")
	// ErrCancelled is returned when registering on an evaluator that has been cancelled.
	ErrCancelled = errors.New("pending flag evaluator cancelled")
)

// Submit marshals fn onto the owner's serial executor. It returns false if
// the executor no longer accepts work.
type Submit func(fn func()) bool

// Promote is called on the executor when a pending flag becomes live.
type Promote func(p Flag)

// Evaluator decides when pending flags become live.
//
// Register, Recheck and CancelAll must be called on the owner's executor.
// Timer, scheduler and signal callbacks arrive on arbitrary goroutines and are
// marshaled back through Submit before touching any registration.
type Evaluator struct {
	submit  Submit
	promote Promote
	signals map[string]signals.Signal

	mutex     sync.Mutex
	regs      []*registration
	seq       uint64
	cancelled bool
}

type registration struct {
	seq        uint64
	flag       Flag
	conditions []signals.Signal
	delayDone  bool
	schedDone  bool
	live       bool
	timer      *time.Timer
	cancels    []func()
}

// NewEvaluator returns an evaluator that resolves condition names against sigs.
func NewEvaluator(submit Submit, promote Promote, sigs ...signals.Signal) *Evaluator {
	e := &Evaluator{
		submit:  submit,
		promote: promote,
		signals: make(map[string]signals.Signal, len(sigs)),
	}

	for _, s := range sigs {
		e.signals[s.Name()] = s
	}

	return e
}

// Signal returns the named signal, if known.
func (e *Evaluator) Signal(name string) (signals.Signal, bool) {
	s, ok := e.signals[name]

	return s, ok
}

// Register records p and subscribes to its gates. A registration for the same
// flag that is still pending is superseded. A flag with no gates is promoted
// immediately.
func (e *Evaluator) Register(p Flag) error {
	conds := make([]signals.Signal, 0, len(p.Conditions))

	for _, name := range p.Conditions {
		sig, ok := e.signals[name]
		if !ok {
			return fmt.Errorf("%w: %q (flag %s)", ErrUnknownCondition, name, p.Flag)
		}

		conds = append(conds, sig)
	}

	e.mutex.Lock()

	if e.cancelled {
		e.mutex.Unlock()

		return ErrCancelled
	}

	// At most one registration per flag is live.
	if idx := slices.IndexFunc(e.regs, func(r *registration) bool { return r.flag.Flag == p.Flag }); idx >= 0 {
		e.dropLocked(e.regs[idx])
	}

	e.seq++
	reg := &registration{
		seq:        e.seq,
		flag:       p,
		conditions: conds,
		delayDone:  p.Delay <= 0,
		schedDone:  p.Scheduler == nil,
		live:       true,
	}
	e.regs = append(e.regs, reg)
	e.mutex.Unlock()

	if !reg.delayDone {
		reg.timer = time.AfterFunc(p.Delay, func() {
			e.submit(func() {
				reg.delayDone = true
				e.check(reg)
			})
		})
	}

	if !reg.schedDone {
		reg.cancels = append(reg.cancels, p.Scheduler.OnNextFire(func() {
			e.submit(func() {
				reg.schedDone = true
				e.check(reg)
			})
		}))
		p.Scheduler.Trigger()
	}

	for _, sig := range conds {
		reg.cancels = append(reg.cancels, sig.Subscribe(func() {
			e.submit(e.Recheck)
		}))
	}

	e.check(reg)

	return nil
}

// Recheck recomputes every registration in registration order.
func (e *Evaluator) Recheck() {
	e.mutex.Lock()
	regs := make([]*registration, len(e.regs))
	copy(regs, e.regs)
	e.mutex.Unlock()

	for _, reg := range regs {
		e.check(reg)
	}
}

// check promotes reg if every gate is open right now. Conditions are read
// fresh; a signal that was true earlier and is false now keeps the flag back.
func (e *Evaluator) check(reg *registration) {
	if !reg.live || !reg.delayDone || !reg.schedDone {
		return
	}

	if !signals.All(reg.conditions...) {
		return
	}

	e.mutex.Lock()
	e.dropLocked(reg)
	e.mutex.Unlock()

	e.promote(reg.flag)
}

// dropLocked unsubscribes reg and removes it from the registry.
func (e *Evaluator) dropLocked(reg *registration) {
	if !reg.live {
		return
	}

	reg.live = false

	if reg.timer != nil {
		reg.timer.Stop()
	}

	for _, cancel := range reg.cancels {
		cancel()
	}

	for i, r := range e.regs {
		if r == reg {
			e.regs = append(e.regs[:i], e.regs[i+1:]...)

			break
		}
	}
}

// CancelAll drops every registration, stops their timers, cancels their
// signal subscriptions, disarms their schedulers, and refuses further registrations.
func (e *Evaluator) CancelAll() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.cancelled = true

	scheds := make(map[*scheduler.Scheduler]struct{})

	for len(e.regs) > 0 {
		reg := e.regs[0]
		if reg.flag.Scheduler != nil {
			scheds[reg.flag.Scheduler] = struct{}{}
		}

		e.dropLocked(reg)
	}

	for s := range scheds {
		s.Cancel()
	}
}

// Pending returns the registrations still waiting, in registration order.
func (e *Evaluator) Pending() []Flag {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	out := make([]Flag, 0, len(e.regs))
	for _, reg := range e.regs {
		out = append(out, reg.flag)
	}

	return out
}

// Flags returns the names of the flags still waiting.
func (e *Evaluator) Flags() []flags.Flag {
	pend := e.Pending()

	out := make([]flags.Flag, 0, len(pend))
	for _, p := range pend {
		out = append(out, p.Flag)
	}

	return out
}
