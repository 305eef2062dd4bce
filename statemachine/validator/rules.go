package validator

import (
	"fmt"

	"github.com/amp-labs/statekeeper/statemachine"
)

// RuleResult contains both errors and warnings from a rule check.
type RuleResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// Rule defines a lint check.
type Rule interface {
	Name() string
	Check(config *statemachine.Config) RuleResult
}

// DefaultRules returns the standard set of lint rules.
func DefaultRules() []Rule {
	return []Rule{
		&unreachableStateRule{},
		&deadEndRule{},
		&shadowedRule{},
		&unusedFlagRule{},
		&orphanRetryRule{},
		&terminalExitRule{},
	}
}

type unreachableStateRule struct{}

func (r *unreachableStateRule) Name() string {
	return "UnreachableState"
}

func (r *unreachableStateRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	reachable := config.ReachableStates()

	for _, state := range config.States {
		if !reachable[state.Name] {
			warnings = append(warnings, ValidationWarning{
				Code:     "UNREACHABLE_STATE",
				Message:  fmt.Sprintf("State '%s' cannot be reached from initial state '%s'", state.Name, config.InitialState),
				Location: Location{State: state.Name, Rule: -1},
			})
		}
	}

	return RuleResult{Warnings: warnings}
}

// deadEndRule flags non-terminal states that no rule leaves.
type deadEndRule struct{}

func (r *deadEndRule) Name() string {
	return "DeadEnd"
}

func (r *deadEndRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	hasOutgoing := make(map[string]bool)
	for _, rule := range config.Rules {
		hasOutgoing[rule.From] = true
	}

	for _, state := range config.States {
		if !hasOutgoing[state.Name] && !config.IsTerminal(statemachine.State(state.Name)) {
			warnings = append(warnings, ValidationWarning{
				Code:     "DEAD_END",
				Message:  fmt.Sprintf("Non-terminal state '%s' has no outgoing rules", state.Name),
				Location: Location{State: state.Name, Rule: -1},
			})
		}
	}

	return RuleResult{Warnings: warnings}
}

// shadowedRule flags rules that an earlier rule always wins over.
type shadowedRule struct{}

func (r *shadowedRule) Name() string {
	return "ShadowedRule"
}

func (r *shadowedRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	alwaysFrom := make(map[string]int)
	seen := make(map[string]int)

	for i, rule := range config.Rules {
		if first, ok := alwaysFrom[rule.From]; ok {
			errors = append(errors, ValidationError{
				Code:     "SHADOWED_RULE",
				Message:  fmt.Sprintf("Rule %d never fires: rule %d always fires from '%s'", i, first, rule.From),
				Location: Location{Rule: i, State: rule.From},
			})

			continue
		}

		if rule.Always {
			alwaysFrom[rule.From] = i

			continue
		}

		key := rule.From + "+" + rule.On
		if first, ok := seen[key]; ok {
			errors = append(errors, ValidationError{
				Code:     "SHADOWED_RULE",
				Message:  fmt.Sprintf("Rule %d never fires: rule %d already consumes '%s' in '%s'", i, first, rule.On, rule.From),
				Location: Location{Rule: i, State: rule.From},
			})

			continue
		}

		seen[key] = i
	}

	return RuleResult{Errors: errors}
}

// unusedFlagRule flags declared flags that no rule consumes.
type unusedFlagRule struct{}

func (r *unusedFlagRule) Name() string {
	return "UnusedFlag"
}

func (r *unusedFlagRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	consumed := make(map[string]bool)
	for _, rule := range config.Rules {
		consumed[rule.On] = true
	}

	for _, flag := range config.Flags {
		if !consumed[flag.Name] {
			warnings = append(warnings, ValidationWarning{
				Code:     "UNUSED_FLAG",
				Message:  fmt.Sprintf("Flag '%s' is never consumed by any rule", flag.Name),
				Location: Location{Flag: flag.Name, Rule: -1},
			})
		}
	}

	return RuleResult{Warnings: warnings}
}

// orphanRetryRule flags retries whose flag is not consumed where the failure lands.
type orphanRetryRule struct{}

func (r *orphanRetryRule) Name() string {
	return "OrphanRetry"
}

func (r *orphanRetryRule) Check(config *statemachine.Config) RuleResult {
	var errors []ValidationError

	consumedIn := make(map[string]bool)
	for _, rule := range config.Rules {
		if rule.On != "" {
			consumedIn[rule.From+"+"+rule.On] = true
		}
	}

	for i, rule := range config.Rules {
		if rule.Retry == nil {
			continue
		}

		landing := rule.OnError
		if landing == "" {
			landing = rule.From
		}

		if !consumedIn[landing+"+"+rule.Retry.Flag] {
			errors = append(errors, ValidationError{
				Code: "ORPHAN_RETRY",
				Message: fmt.Sprintf("Rule %d retries with '%s' but no rule consumes it in '%s'",
					i, rule.Retry.Flag, landing),
				Location: Location{Rule: i, State: landing},
			})
		}
	}

	return RuleResult{Errors: errors}
}

// terminalExitRule flags rules leaving a terminal state; the rule engine never fires them.
type terminalExitRule struct{}

func (r *terminalExitRule) Name() string {
	return "TerminalExit"
}

func (r *terminalExitRule) Check(config *statemachine.Config) RuleResult {
	var warnings []ValidationWarning

	for i, rule := range config.Rules {
		if config.IsTerminal(statemachine.State(rule.From)) {
			warnings = append(warnings, ValidationWarning{
				Code:     "TERMINAL_EXIT",
				Message:  fmt.Sprintf("Rule %d leaves terminal state '%s' and will never fire", i, rule.From),
				Location: Location{Rule: i, State: rule.From},
			})
		}
	}

	return RuleResult{Warnings: warnings}
}
