// Package visualizer generates Mermaid state diagrams from rule configurations.
//
//nolint:varnamelen // short names idiomatic
package visualizer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/amp-labs/statekeeper/statemachine"
)

// Visualizer errors.
var (
	ErrConfigNil      = errors.New("config cannot be nil")
	ErrNoInitialState = errors.New("config must have an initial state")
)

// GenerateMermaid converts a Config to a Mermaid state diagram.
func GenerateMermaid(config *statemachine.Config) (string, error) {
	return GenerateMermaidWithOptions(config, DefaultOptions())
}

// GenerateMermaidFromFile loads a config from a file and generates a Mermaid diagram.
func GenerateMermaidFromFile(path string) (string, error) {
	config, err := statemachine.LoadConfig(path)
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	return GenerateMermaid(config)
}

// GenerateMermaidWithOptions generates a Mermaid diagram with custom options.
func GenerateMermaidWithOptions(config *statemachine.Config, opts Options) (string, error) {
	if config == nil {
		return "", ErrConfigNil
	}

	if config.InitialState == "" {
		return "", ErrNoInitialState
	}

	var sb strings.Builder

	if opts.Fenced {
		sb.WriteString("```mermaid\n")
	}

	fmt.Fprintf(&sb, "stateDiagram-%s\n", opts.Variant)
	fmt.Fprintf(&sb, "    [*] --> %s\n", config.InitialState)

	highlight := make(map[string]bool, len(opts.HighlightPath))
	for _, state := range opts.HighlightPath {
		highlight[state] = true
	}

	rulesFrom := make(map[string][]statemachine.RuleConfig)
	for _, rule := range config.Rules {
		rulesFrom[rule.From] = append(rulesFrom[rule.From], rule)
	}

	for _, state := range config.States {
		if opts.ShowDescriptions && state.Description != "" {
			fmt.Fprintf(&sb, "    %s: %s\n", state.Name, state.Description)
		}

		terminal := config.IsTerminal(statemachine.State(state.Name))

		switch {
		case highlight[state.Name]:
			fmt.Fprintf(&sb, "    class %s highlighted\n", state.Name)
		case terminal:
			fmt.Fprintf(&sb, "    class %s terminalState\n", state.Name)
		}

		for _, rule := range rulesFrom[state.Name] {
			fmt.Fprintf(&sb, "    %s --> %s%s\n", state.Name, rule.To, label(rule, opts))

			if rule.OnError != "" {
				fmt.Fprintf(&sb, "    %s --> %s%s\n", state.Name, rule.OnError, errorLabel(rule, opts))
			}
		}

		if terminal {
			fmt.Fprintf(&sb, "    %s --> [*]\n", state.Name)
		}
	}

	sb.WriteString("\n")
	sb.WriteString("    classDef terminalState fill:#c8e6c9,stroke:#2e7d32,stroke-width:2px\n")
	sb.WriteString("    classDef highlighted fill:#fff9c4,stroke:#f57f17,stroke-width:3px\n")

	if opts.Fenced {
		sb.WriteString("```\n")
	}

	return sb.String(), nil
}

func label(rule statemachine.RuleConfig, opts Options) string {
	var parts []string

	if opts.ShowFlags && rule.On != "" {
		parts = append(parts, rule.On)
	}

	if opts.ShowOperations && rule.Operation != "" {
		parts = append(parts, "/"+rule.Operation)
	}

	if len(parts) == 0 {
		return ""
	}

	return ": " + strings.Join(parts, " ")
}

func errorLabel(rule statemachine.RuleConfig, opts Options) string {
	if !opts.ShowOperations || rule.Operation == "" {
		return ": error"
	}

	return ": " + rule.Operation + " failed"
}
