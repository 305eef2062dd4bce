package statemachine

import (
	"errors"
	"fmt"
)

var (
	// ErrHalted is returned by Start after Halt, and used to complete watchers still pending at halt.
	ErrHalted = errors.New("state machine halted")
	// ErrOperationPanic marks an operation whose work panicked.
	ErrOperationPanic = errors.New("operation panicked")
	// ErrEnginePanic marks an engine that panicked while deciding.
	ErrEnginePanic = errors.New("engine panicked")

	// ErrEngineRequired is returned by New without an engine.
	ErrEngineRequired = errors.New("engine is required")

	// ErrInvalidDefinition wraps every definition validation failure.
	ErrInvalidDefinition = errors.New("invalid state machine definition")
	// ErrInvalidConfig wraps every rule configuration validation failure.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrConfigNameRequired indicates that a configuration name is required.
	ErrConfigNameRequired = errors.New("config name is required")
	// ErrInitialStateRequired indicates that an initial state is required.
	ErrInitialStateRequired = errors.New("initial state is required")
	// ErrStateRequired indicates that at least one state is required.
	ErrStateRequired = errors.New("at least one state is required")
	// ErrInitialStateNotFound indicates that the initial state does not exist.
	ErrInitialStateNotFound = errors.New("initial state does not exist")
	// ErrTerminalStateNotFound indicates that a terminal state does not exist.
	ErrTerminalStateNotFound = errors.New("terminal state does not exist")
	// ErrStateNameRequired indicates that a state name is required.
	ErrStateNameRequired = errors.New("state name is required")
	// ErrDuplicateStateName indicates that a duplicate state name was found.
	ErrDuplicateStateName = errors.New("duplicate state name")
	// ErrFlagNameRequired indicates that a flag name is required.
	ErrFlagNameRequired = errors.New("flag name is required")
	// ErrDuplicateFlagName indicates that a duplicate flag name was found.
	ErrDuplicateFlagName = errors.New("duplicate flag name")
	// ErrDuplicateSignalName indicates that a duplicate signal name was found.
	ErrDuplicateSignalName = errors.New("duplicate signal name")
	// ErrRuleFromRequired indicates that a rule has no source state.
	ErrRuleFromRequired = errors.New("rule from state is required")
	// ErrRuleToRequired indicates that a rule has no target state.
	ErrRuleToRequired = errors.New("rule to state is required")
	// ErrRuleTriggerRequired indicates that a rule needs either a flag or always.
	ErrRuleTriggerRequired = errors.New("rule needs exactly one of 'on' or 'always'")
	// ErrUnknownState indicates a reference to a state outside the universe.
	ErrUnknownState = errors.New("unknown state")
	// ErrUnknownFlag indicates a reference to a flag outside the universe.
	ErrUnknownFlag = errors.New("unknown flag")
	// ErrUnknownSignal indicates a reference to an undeclared signal.
	ErrUnknownSignal = errors.New("unknown signal")
	// ErrAlwaysSelfLoop indicates an unconditional rule that never leaves its state.
	ErrAlwaysSelfLoop = errors.New("always rule must change state")
	// ErrAlwaysRuleUnguarded indicates an unconditional rule whose failure would rerun it immediately.
	ErrAlwaysRuleUnguarded = errors.New("always rule with an operation needs onError or retry")
	// ErrRetryFlagRequired indicates a retry block without a flag to raise.
	ErrRetryFlagRequired = errors.New("retry flag is required")
	// ErrInvalidDuration indicates a duration string that does not parse.
	ErrInvalidDuration = errors.New("invalid duration")
	// ErrNoConfigLoader indicates that no config loader is registered.
	ErrNoConfigLoader = errors.New("no config loader registered; use SetConfigLoader() or provide a file path")
)

// StateError wraps an error with state context.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("state %s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// OperationError reports a failed operation. It is what the engine sees in Input.LastResult.Err.
type OperationError struct {
	Operation string
	From      State
	To        State
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s (%s -> %s): %v", e.Operation, e.From, e.To, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// ContractError is the panic value for a reference outside the machine's
// declared universe. It is a programming error and is never retried.
type ContractError struct {
	Machine string
	Kind    string
	Name    string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("machine %s: %s %q is not in the declared universe", e.Machine, e.Kind, e.Name)
}

func (e *ContractError) Unwrap() error {
	switch e.Kind {
	case kindFlag:
		return ErrUnknownFlag
	case kindSignal:
		return ErrUnknownSignal
	default:
		return ErrUnknownState
	}
}

const (
	kindState  = "state"
	kindFlag   = "flag"
	kindSignal = "signal"
)

// WrapStateError wraps an error with state context.
func WrapStateError(state State, err error) error {
	if err == nil {
		return nil
	}

	return &StateError{
		State: state,
		Err:   err,
	}
}
