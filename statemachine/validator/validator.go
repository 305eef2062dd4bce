// Package validator lints rule-driven machine configurations beyond what
// Config.Validate enforces: it reports structural problems that load fine but
// are almost certainly mistakes.
package validator

import (
	"fmt"

	"github.com/amp-labs/statekeeper/statemachine"
)

// ValidationResult contains the results of linting a config.
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// ValidationError is an issue that makes the machine misbehave.
type ValidationError struct {
	Code     string   // Error code like "SHADOWED_RULE"
	Message  string   // Human-readable error message
	Location Location // Where the error occurred
}

// ValidationWarning represents a non-critical issue.
type ValidationWarning struct {
	Code     string
	Message  string
	Location Location
}

// Location identifies where an issue occurred.
type Location struct {
	File  string // Config file path
	Rule  int    // Rule index, -1 if not applicable
	State string // State name if applicable
	Flag  string // Flag name if applicable
}

func (l Location) String() string {
	out := l.File

	switch {
	case l.Rule >= 0:
		out += fmt.Sprintf(" rule %d", l.Rule)
	case l.State != "":
		out += " state " + l.State
	case l.Flag != "":
		out += " flag " + l.Flag
	}

	return out
}

// Validate lints config with the default rules. A config that fails
// Config.Validate is reported as a single CONFIG_INVALID error.
func Validate(config *statemachine.Config) ValidationResult {
	return ValidateWithRules(config, DefaultRules())
}

// ValidateFile loads a config from a file and lints it.
func ValidateFile(path string) (ValidationResult, error) {
	config, err := statemachine.LoadConfig(path)
	if err != nil {
		return ValidationResult{
			Errors: []ValidationError{{
				Code:     "CONFIG_LOAD_FAILED",
				Message:  fmt.Sprintf("Failed to load config: %v", err),
				Location: Location{File: path, Rule: -1},
			}},
		}, err
	}

	result := Validate(config)

	for i := range result.Errors {
		result.Errors[i].Location.File = path
	}

	for i := range result.Warnings {
		result.Warnings[i].Location.File = path
	}

	return result, nil
}

// ValidateWithRules lints using custom rules.
func ValidateWithRules(config *statemachine.Config, rules []Rule) ValidationResult {
	if err := config.Validate(); err != nil {
		return ValidationResult{
			Errors: []ValidationError{{
				Code:     "CONFIG_INVALID",
				Message:  err.Error(),
				Location: Location{Rule: -1},
			}},
		}
	}

	var result ValidationResult

	for _, rule := range rules {
		ruleResult := rule.Check(config)
		result.Errors = append(result.Errors, ruleResult.Errors...)
		result.Warnings = append(result.Warnings, ruleResult.Warnings...)
	}

	result.Valid = len(result.Errors) == 0

	return result
}

// ValidateStrict lints and treats warnings as errors.
func ValidateStrict(config *statemachine.Config) ValidationResult {
	result := Validate(config)

	for _, w := range result.Warnings {
		result.Errors = append(result.Errors, ValidationError(w))
	}

	result.Warnings = nil
	result.Valid = len(result.Errors) == 0

	return result
}
