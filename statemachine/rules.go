package statemachine

import (
	"context"
	"fmt"
	"sync"

	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/logger"
	"github.com/amp-labs/statekeeper/pending"
	"github.com/amp-labs/statekeeper/retry"
	"github.com/amp-labs/statekeeper/signals"
)

// WorkFunc is the work bound to a named operation.
type WorkFunc func(ctx context.Context) error

// RuleEngine is an Engine driven by a Config. Operations named in rules get
// their work from Handle; an operation with no handler is a pure transition.
//
// A RuleEngine keeps retry attempt counts and must drive a single machine.
type RuleEngine struct {
	config   *Config
	policies map[string]retry.Policy // by operation name

	mutex    sync.Mutex
	handlers map[string]WorkFunc
	attempts map[string]uint
	awaiting map[*RuleConfig]bool // always rules held back until their retry flag arrives
	lastRule *RuleConfig
	seenSeq  uint64
}

var _ Engine = (*RuleEngine)(nil)

// NewRuleEngine validates config and builds an engine from it.
func NewRuleEngine(config *Config) (*RuleEngine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	e := &RuleEngine{
		config:   config,
		policies: make(map[string]retry.Policy),
		handlers: make(map[string]WorkFunc),
		attempts: make(map[string]uint),
		awaiting: make(map[*RuleConfig]bool),
	}

	for i := range config.Rules {
		rule := &config.Rules[i]
		if rule.Retry == nil {
			continue
		}

		policy, err := rule.Retry.policy()
		if err != nil {
			return nil, fmt.Errorf("%w: rule %d: %w", ErrInvalidConfig, i, err)
		}

		e.policies[operationName(rule)] = policy
	}

	return e, nil
}

// Config returns the configuration the engine was built from.
func (e *RuleEngine) Config() *Config {
	return e.config
}

// Definition returns the universe declared by the configuration.
func (e *RuleEngine) Definition() Definition {
	return e.config.Definition()
}

// Signals returns one Bool per declared signal, set to its initial value.
func (e *RuleEngine) Signals() []*signals.Bool {
	out := make([]*signals.Bool, 0, len(e.config.Signals))

	for _, sig := range e.config.Signals {
		out = append(out, signals.NewBool(sig.Name, sig.Initial))
	}

	return out
}

// Handle binds work to an operation name.
func (e *RuleEngine) Handle(operation string, work WorkFunc) *RuleEngine {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.handlers[operation] = work

	return e
}

// Attempts returns the consecutive failures recorded for an operation.
func (e *RuleEngine) Attempts(operation string) uint {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	return e.attempts[operation]
}

func (e *RuleEngine) Next(ctx context.Context, in Input) *Operation {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.observe(ctx, in)

	if e.config.IsTerminal(in.State) {
		return nil
	}

	for rule := range e.awaiting {
		if State(rule.From) != in.State {
			delete(e.awaiting, rule)
		}
	}

	for i := range e.config.Rules {
		rule := &e.config.Rules[i]
		if State(rule.From) != in.State {
			continue
		}

		if !e.triggered(rule, in.Flags) {
			continue
		}

		e.lastRule = rule

		return e.operation(rule)
	}

	return nil
}

// triggered consumes the flag a rule waits on. An always rule whose last run
// failed in place waits for its retry flag instead of firing again.
func (e *RuleEngine) triggered(rule *RuleConfig, set flags.Handle) bool {
	if !rule.Always {
		return set.Consume(flags.Flag(rule.On))
	}

	if !e.awaiting[rule] {
		return true
	}

	if !set.Consume(flags.Flag(rule.Retry.Flag)) {
		return false
	}

	delete(e.awaiting, rule)

	return true
}

// observe accounts for the previous operation's outcome once.
func (e *RuleEngine) observe(ctx context.Context, in Input) {
	last := in.LastResult
	if last.Seq == 0 || last.Seq == e.seenSeq || e.lastRule == nil {
		return
	}

	e.seenSeq = last.Seq
	rule := e.lastRule
	e.lastRule = nil
	name := operationName(rule)

	if !last.Failed() {
		delete(e.attempts, name)

		return
	}

	if rule.Retry == nil {
		return
	}

	attempt := e.attempts[name]
	e.attempts[name] = attempt + 1

	delay := e.policies[name].Delay(attempt)

	logger.Get(ctx).Info("scheduling retry",
		"operation", name,
		"attempt", attempt+1,
		"delay", delay,
		"flag", rule.Retry.Flag,
		"error", last.Err)

	if rule.Always && in.State == State(rule.From) {
		e.awaiting[rule] = true
	}

	in.Pending.RegisterPending(pending.New(flags.Flag(rule.Retry.Flag),
		pending.WithDelay(delay),
		pending.WithConditions(rule.Retry.Conditions...)))
}

func (e *RuleEngine) operation(rule *RuleConfig) *Operation {
	name := operationName(rule)

	op := &Operation{
		Name:        name,
		Target:      State(rule.To),
		ErrorTarget: State(rule.OnError),
	}

	if work, ok := e.handlers[rule.Operation]; ok && rule.Operation != "" {
		op.Work = work
	}

	return op
}

func operationName(rule *RuleConfig) string {
	if rule.Operation != "" {
		return rule.Operation
	}

	return rule.From + "->" + rule.To
}

func (r *RetryConfig) policy() (retry.Policy, error) {
	base, err := parseDuration(r.Base)
	if err != nil {
		return retry.Policy{}, err
	}

	maxDelay, err := parseDuration(r.Max)
	if err != nil {
		return retry.Policy{}, err
	}

	minDelay, err := parseDuration(r.MinDelay)
	if err != nil {
		return retry.Policy{}, err
	}

	factor := r.Factor
	if factor <= 0 {
		factor = 2
	}

	jitter := retry.Jitter(r.Jitter)
	if r.Jitter == 0 {
		jitter = retry.WithoutJitter
	}

	return retry.Policy{
		Backoff:  retry.ExpBackoff{Base: base, Max: maxDelay, Factor: factor},
		Jitter:   jitter,
		MinDelay: minDelay,
	}, nil
}
