package statemachine

import (
	"context"
	"time"

	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/pending"
)

// Metric outcome constants.
const (
	outcomeSuccess = "success"
	outcomeError   = "error"
)

// Engine decides what a machine does next.
//
// Next is called on the machine's executor, never concurrently with itself,
// and must not block. It receives the authoritative state and live flags at
// call time and returns the next operation, or nil when there is nothing to do.
// Referencing a state or flag outside the machine's universe is a contract violation.
type Engine interface {
	Next(ctx context.Context, in Input) *Operation
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, in Input) *Operation

func (f EngineFunc) Next(ctx context.Context, in Input) *Operation {
	return f(ctx, in)
}

// Input is what the engine sees on each decision.
type Input struct {
	// State is the current state.
	State State

	// Flags is the live flag set. Consume a flag to act on it.
	Flags flags.Handle

	// Pending accepts deferred flags.
	Pending pending.Registrar

	// LastResult is the outcome of the most recently completed operation.
	// Its Seq is zero until the first operation completes.
	LastResult Result
}

// Operation is a decided transition. Work runs off the executor; a nil Work
// commits immediately.
type Operation struct {
	Name string

	// Target is committed when Work succeeds.
	Target State

	// ErrorTarget is committed when Work fails. When empty the state is unchanged.
	ErrorTarget State

	Work func(ctx context.Context) error
}

// Result records a completed operation.
type Result struct {
	// Seq increases by one for every completed operation.
	Seq       uint64
	Operation string
	From      State
	To        State

	// Err is an *OperationError when the operation failed.
	Err      error
	Duration time.Duration
}

// Failed reports whether the operation failed.
func (r Result) Failed() bool {
	return r.Err != nil
}

// Transitioned reports whether the operation changed the state.
func (r Result) Transitioned() bool {
	return r.Seq > 0 && r.From != r.To
}

func (r Result) outcome() string {
	if r.Err != nil {
		return outcomeError
	}

	return outcomeSuccess
}
