package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/amp-labs/statekeeper/executor"
	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/latch"
	"github.com/amp-labs/statekeeper/logger"
	"github.com/amp-labs/statekeeper/pending"
	"github.com/amp-labs/statekeeper/watcher"
	"go.uber.org/atomic"
)

const subsystem = "statemachine"

// Machine runs an Engine over a fixed universe of states and flags.
//
// All mutation happens on one serial executor: Raise, RegisterPending,
// RegisterWatcher, Start and Halt enqueue a command and return. The engine is
// consulted on the executor; operation work runs on a worker pool and
// re-enters the executor to commit. Only one operation is ever in flight.
type Machine struct {
	def       Definition
	name      string
	engine    Engine
	events    Logger
	slogger   *slog.Logger
	pool      pond.Pool
	ownPool   bool
	opTimeout time.Duration

	exec      *executor.Serial
	live      *flags.Set
	handle    flags.Handle
	evaluator *pending.Evaluator
	watchers  *watcher.Registry[State]

	started  *atomic.Bool
	halted   *atomic.Bool
	isPaused *atomic.Bool

	// logCtx never changes after New and may be used from any goroutine.
	logCtx context.Context //nolint:containedctx

	// Owned by the executor.
	ctx      context.Context //nolint:containedctx
	active   bool
	inFlight bool
	seq      uint64

	poolStopped pond.Task

	// Snapshot state, written on the executor and readable from anywhere.
	mutex       sync.RWMutex
	state       State
	conditions  map[State]*latch.Latch
	generation  uint64
	pausedLatch *latch.Latch
	last        Result
	fault       error
}

// New validates def and returns a machine that has not been started.
func New(def Definition, engine Engine, opts ...Option) (*Machine, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	if engine == nil {
		return nil, ErrEngineRequired
	}

	o := &options{name: def.Name}
	for _, opt := range opts {
		opt(o)
	}

	m := &Machine{
		def:        def,
		name:       sanitizeMachine(o.name),
		engine:     engine,
		slogger:    o.logger,
		pool:       o.pool,
		opTimeout:  o.opTimeout,
		live:       flags.NewSet(),
		watchers:   watcher.NewRegistry[State](),
		started:    atomic.NewBool(false),
		halted:     atomic.NewBool(false),
		isPaused:   atomic.NewBool(false),
		conditions: make(map[State]*latch.Latch, len(def.States)),
	}

	m.logCtx = m.decorate(context.Background())
	m.ctx = m.logCtx

	m.events = o.eventLogger
	if m.events == nil {
		m.events = NewDefaultLogger(logger.Get(m.logCtx), m.name)
	}

	if m.pool == nil {
		m.pool = pond.NewPool(1)
		m.ownPool = true
	}

	m.generation++
	m.pausedLatch = latch.NewGeneration(m.generation)

	m.exec = executor.New(m.logCtx, m.name)
	m.handle = &universeFlags{machine: m}
	m.evaluator = pending.NewEvaluator(m.exec.Submit, m.promote, o.signals...)

	paused.WithLabelValues(m.name).Set(0)
	pendingFlags.WithLabelValues(m.name).Set(0)

	return m, nil
}

func (m *Machine) decorate(ctx context.Context) context.Context {
	ctx = logger.WithSubsystem(ctx, subsystem)

	if m.slogger != nil {
		ctx = logger.WithLogger(ctx, m.slogger)
	}

	return ctx
}

func (m *Machine) Name() string {
	return m.name
}

func (m *Machine) Definition() Definition {
	return m.def
}

// Start enters the initial state and runs the first evaluation pass. Work
// contexts derive from ctx but are not canceled with it. A second Start is a
// no-op; Start after Halt returns ErrHalted.
func (m *Machine) Start(ctx context.Context) error {
	if m.halted.Load() {
		return ErrHalted
	}

	if !m.started.CompareAndSwap(false, true) {
		return nil
	}

	base := m.decorate(context.WithoutCancel(ctx))

	if !m.exec.Submit(func() { m.start(base) }) {
		return ErrHalted
	}

	return nil
}

func (m *Machine) start(ctx context.Context) {
	if m.halted.Load() {
		return
	}

	m.ctx = ctx
	m.active = true

	logger.Get(ctx).Info("Machine started", "machine", m.name, "initial", m.def.Initial)

	m.enter(m.def.Initial)
	m.evaluate()
}

// Halt stops automatic transitions. Pending flags, their timers, subscriptions
// and schedulers are cancelled, and pending watchers complete with ErrHalted.
// Operation work already running is not interrupted; its commit is dropped.
// Halt does not block; use Wait to wait for shutdown.
func (m *Machine) Halt() {
	if !m.halted.CompareAndSwap(false, true) {
		return
	}

	m.exec.Submit(func() { m.shutdown(ErrHalted) })
}

// Wait blocks until the machine has halted and any work it started has returned.
func (m *Machine) Wait() {
	m.exec.Wait()

	if m.poolStopped != nil {
		_ = m.poolStopped.Wait()
	}
}

func (m *Machine) shutdown(cause error) {
	m.active = false
	m.evaluator.CancelAll()
	m.watchers.CompleteAll(cause)

	pendingFlags.WithLabelValues(m.name).Set(0)

	if m.ownPool {
		m.poolStopped = m.pool.Stop()
	}

	logger.Get(m.ctx).Info("Machine halted", "machine", m.name, "state", m.State(), "cause", cause)

	m.exec.Stop()
}

// fail halts the machine after a contract violation or engine panic.
func (m *Machine) fail(err error) {
	m.mutex.Lock()
	m.fault = err
	m.mutex.Unlock()

	logger.Get(m.ctx).Error("Machine faulted", "machine", m.name, "state", m.State(), "error", err)

	m.halted.Store(true)
	m.shutdown(err)
}

// Err returns the fault that halted the machine, if any.
func (m *Machine) Err() error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.fault
}

// Raise inserts flag into the live set and schedules an evaluation pass.
// Before Start the flag is only recorded.
func (m *Machine) Raise(flag flags.Flag) {
	m.checkFlag(flag)

	if !m.exec.Submit(func() { m.raise(flag, "direct") }) {
		logger.Get(m.logCtx).Debug("flag dropped, machine halted", "machine", m.name, "flag", flag)
	}
}

func (m *Machine) raise(flag flags.Flag, source string) {
	m.live.Raise(flag)
	flagsRaised.WithLabelValues(m.name, string(flag), source).Inc()
	m.events.FlagRaised(m.ctx, flag)
	m.evaluate()
}

// RegisterPending defers p until its gates open.
func (m *Machine) RegisterPending(p pending.Flag) {
	m.checkFlag(p.Flag)

	for _, name := range p.Conditions {
		if _, ok := m.evaluator.Signal(name); !ok {
			panic(&ContractError{Machine: m.name, Kind: kindSignal, Name: name})
		}
	}

	m.exec.Submit(func() {
		if err := m.evaluator.Register(p); err != nil {
			logger.Get(m.ctx).Debug("pending flag not registered", "machine", m.name, "flag", p.Flag, "error", err)

			return
		}

		m.updatePendingGauge()
	})
}

func (m *Machine) promote(p pending.Flag) {
	m.events.PendingPromoted(m.ctx, p)
	m.updatePendingGauge()
	m.raise(p.Flag, "pending")
}

func (m *Machine) updatePendingGauge() {
	pendingFlags.WithLabelValues(m.name).Set(float64(len(m.evaluator.Pending())))
}

// PossiblePendingFlags returns the flags currently deferred.
func (m *Machine) PossiblePendingFlags() []flags.Flag {
	return flags.Sorted(m.evaluator.Flags())
}

// RegisterWatcher adds w. It resolves immediately if the current state matches.
// After Halt it completes with ErrHalted.
func (m *Machine) RegisterWatcher(w *watcher.Watcher[State]) {
	if !m.exec.Submit(func() { m.watchers.Register(w, m.State()) }) {
		w.CompleteWithErrorIfPending(ErrHalted)
	}
}

// DoWatched raises flag and waits for w. If ctx ends first, w is completed with ctx's error.
func (m *Machine) DoWatched(ctx context.Context, flag flags.Flag, w *watcher.Watcher[State]) error {
	m.RegisterWatcher(w)
	m.Raise(flag)

	err := w.Wait(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		w.CompleteWithErrorIfPending(ctxErr)

		return w.Err()
	}

	return err
}

// Flush waits until every command submitted before it has run.
func (m *Machine) Flush(ctx context.Context) error {
	err := m.exec.Do(ctx, func() {})
	if errors.Is(err, executor.ErrStopped) {
		return ErrHalted
	}

	return err
}

// IsPaused reports whether the last evaluation pass found nothing to do.
func (m *Machine) IsPaused() bool {
	return m.isPaused.Load()
}

// Paused returns a latch fulfilled when the machine reaches quiescence. A fresh
// latch is installed each time the machine leaves quiescence.
func (m *Machine) Paused() *latch.Latch {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.pausedLatch
}

// Condition returns the latch for the current epoch of state. It is fulfilled
// while state is current, and otherwise fulfilled on the next entry into state.
// References from earlier epochs stay fulfilled.
func (m *Machine) Condition(state State) *latch.Latch {
	m.checkState(state)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.conditionLocked(state)
}

func (m *Machine) conditionLocked(state State) *latch.Latch {
	cond, ok := m.conditions[state]
	if !ok {
		m.generation++
		cond = latch.NewGeneration(m.generation)
		m.conditions[state] = cond
	}

	return cond
}

// State returns the current state. It is empty before Start.
func (m *Machine) State() State {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.state
}

// Flags returns the live flags.
func (m *Machine) Flags() []flags.Flag {
	return m.live.Flags()
}

// LastResult returns the most recently completed operation.
func (m *Machine) LastResult() Result {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.last
}

// evaluate asks the engine for the next operation unless one is in flight.
func (m *Machine) evaluate() {
	if !m.active || m.halted.Load() || m.inFlight {
		return
	}

	op, ok := m.decide()
	if !ok {
		return
	}

	if op == nil {
		m.quiesce()

		return
	}

	if !m.def.HasState(op.Target) {
		m.fail(&ContractError{Machine: m.name, Kind: kindState, Name: string(op.Target)})

		return
	}

	if op.ErrorTarget != "" && !m.def.HasState(op.ErrorTarget) {
		m.fail(&ContractError{Machine: m.name, Kind: kindState, Name: string(op.ErrorTarget)})

		return
	}

	m.unpause()
	m.inFlight = true
	m.dispatch(op)
}

func (m *Machine) decide() (op *Operation, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err, isContract := r.(*ContractError)
			if !isContract {
				m.fail(fmt.Errorf("%w: %v", ErrEnginePanic, r))
			} else {
				m.fail(err)
			}

			logger.Get(m.ctx).Error("engine panicked, machine halted",
				"machine", m.name,
				"error", r,
				"stack", string(debug.Stack()))

			op, ok = nil, false
		}
	}()

	in := Input{
		State:      m.State(),
		Flags:      m.handle,
		Pending:    m,
		LastResult: m.LastResult(),
	}

	return m.engine.Next(m.ctx, in), true
}

func (m *Machine) quiesce() {
	if m.isPaused.Swap(true) {
		return
	}

	m.mutex.RLock()
	pausedLatch := m.pausedLatch
	state := m.state
	m.mutex.RUnlock()

	pausedLatch.Fulfill()
	paused.WithLabelValues(m.name).Set(1)
	m.events.Quiesced(m.ctx, state)
}

func (m *Machine) unpause() {
	m.isPaused.Store(false)
	paused.WithLabelValues(m.name).Set(0)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.pausedLatch.IsFulfilled() {
		m.generation++
		m.pausedLatch = latch.NewGeneration(m.generation)
	}
}

func (m *Machine) dispatch(op *Operation) {
	from := m.State()
	m.events.OperationStarted(m.ctx, op.Name, from)

	if op.Work == nil {
		m.exec.Submit(func() { m.commit(op, from, nil, 0) })

		return
	}

	ctx := m.ctx

	err := m.pool.Go(func() {
		start := time.Now()
		workErr := m.runWork(ctx, op, from)
		elapsed := since(start)

		operationDuration.WithLabelValues(m.name, op.Name).Observe(elapsed.Seconds())

		m.exec.Submit(func() { m.commit(op, from, workErr, elapsed) })
	})
	if err != nil {
		m.exec.Submit(func() { m.commit(op, from, err, 0) })
	}
}

func (m *Machine) runWork(ctx context.Context, op *Operation, from State) (err error) {
	ctx, span := startOperationSpan(ctx, m.name, op, from)

	defer func() {
		if r := recover(); r != nil {
			logger.Get(ctx).Error("operation panicked",
				"machine", m.name,
				"operation", op.Name,
				"error", r,
				"stack", string(debug.Stack()))

			err = fmt.Errorf("%w: %v", ErrOperationPanic, r)
		}

		endOperationSpan(span, err)
	}()

	if m.opTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, m.opTimeout)
		defer cancel()
	}

	return op.Work(ctx)
}

// commit applies a completed operation and re-evaluates. Completions that
// arrive after Halt are dropped.
func (m *Machine) commit(op *Operation, from State, err error, elapsed time.Duration) {
	m.inFlight = false

	if !m.active || m.halted.Load() {
		logger.Get(m.ctx).Debug("commit dropped, machine halted", "machine", m.name, "operation", op.Name)

		return
	}

	m.seq++

	result := Result{
		Seq:       m.seq,
		Operation: op.Name,
		From:      from,
		To:        op.Target,
		Duration:  elapsed,
	}

	transition := true

	if err != nil {
		result.Err = &OperationError{Operation: op.Name, From: from, To: op.Target, Err: err}
		result.To = op.ErrorTarget

		if op.ErrorTarget == "" {
			result.To = from
			transition = false
		}
	}

	m.mutex.Lock()
	m.last = result
	m.mutex.Unlock()

	operationTotal.WithLabelValues(m.name, op.Name, result.outcome()).Inc()
	m.events.OperationCompleted(m.ctx, result)

	if transition {
		m.transition(from, result.To)
	}

	m.evaluate()
}

// transition retires the epoch of from and opens a new epoch of to.
func (m *Machine) transition(from, to State) {
	m.mutex.Lock()

	if cond, ok := m.conditions[from]; ok && cond.IsFulfilled() {
		m.generation++
		m.conditions[from] = latch.NewGeneration(m.generation)
	}

	m.state = to
	m.conditionLocked(to).Fulfill()
	m.mutex.Unlock()

	transitionTotal.WithLabelValues(m.name, string(from), string(to)).Inc()
	m.events.TransitionCommitted(m.ctx, from, to)
	m.watchers.Notify(to)
}

func (m *Machine) enter(state State) {
	m.mutex.Lock()
	m.state = state
	m.conditionLocked(state).Fulfill()
	m.mutex.Unlock()

	m.watchers.Notify(state)
}

func (m *Machine) checkState(state State) {
	if !m.def.HasState(state) {
		panic(&ContractError{Machine: m.name, Kind: kindState, Name: string(state)})
	}
}

func (m *Machine) checkFlag(flag flags.Flag) {
	if !m.def.HasFlag(flag) {
		panic(&ContractError{Machine: m.name, Kind: kindFlag, Name: string(flag)})
	}
}

// universeFlags is the engine's view of the live set. It rejects flags outside the universe.
type universeFlags struct {
	machine *Machine
}

var _ flags.Handle = (*universeFlags)(nil)

func (u *universeFlags) Has(flag flags.Flag) bool {
	u.machine.checkFlag(flag)

	return u.machine.live.Has(flag)
}

func (u *universeFlags) Consume(flag flags.Flag) bool {
	u.machine.checkFlag(flag)

	return u.machine.live.Consume(flag)
}

// Raise from inside the engine is queued like any other raise.
func (u *universeFlags) Raise(flag flags.Flag) {
	u.machine.Raise(flag)
}
