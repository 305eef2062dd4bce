package statemachine

import (
	"fmt"
	"slices"

	"github.com/amp-labs/statekeeper/flags"
)

// State names one node of a machine's fixed state universe.
type State string

// Definition declares the universe a machine runs over.
type Definition struct {
	Name    string
	Initial State
	States  []State
	Flags   []flags.Flag
}

// Validate checks that the universe is non-empty, has no duplicates and contains the initial state.
func (d Definition) Validate() error {
	if len(d.States) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, ErrStateRequired)
	}

	if d.Initial == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, ErrInitialStateRequired)
	}

	seen := make(map[State]bool, len(d.States))

	for _, s := range d.States {
		if s == "" {
			return fmt.Errorf("%w: %w", ErrInvalidDefinition, ErrStateNameRequired)
		}

		if seen[s] {
			return fmt.Errorf("%w: %w: %s", ErrInvalidDefinition, ErrDuplicateStateName, s)
		}

		seen[s] = true
	}

	if !seen[d.Initial] {
		return fmt.Errorf("%w: %w: %s", ErrInvalidDefinition, ErrInitialStateNotFound, d.Initial)
	}

	flagSeen := make(map[flags.Flag]bool, len(d.Flags))

	for _, f := range d.Flags {
		if f == "" {
			return fmt.Errorf("%w: %w", ErrInvalidDefinition, ErrFlagNameRequired)
		}

		if flagSeen[f] {
			return fmt.Errorf("%w: %w: %s", ErrInvalidDefinition, ErrDuplicateFlagName, f)
		}

		flagSeen[f] = true
	}

	return nil
}

// HasState reports whether s belongs to the universe.
func (d Definition) HasState(s State) bool {
	return slices.Contains(d.States, s)
}

// HasFlag reports whether f belongs to the universe.
func (d Definition) HasFlag(f flags.Flag) bool {
	return slices.Contains(d.Flags, f)
}
