package statemachine

import (
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/amp-labs/statekeeper/flags"
	"gopkg.in/yaml.v3"
)

// ConfigLoader is an interface for loading configurations by name.
// Applications can implement this to provide embedded or custom config loading.
type ConfigLoader interface {
	LoadByName(name string) ([]byte, error)
	ListAvailable() []string
}

var (
	// defaultConfigLoader is the global config loader used by LoadConfig.
	defaultConfigLoader ConfigLoader //nolint:gochecknoglobals
)

// SetConfigLoader sets the default config loader for name-based loading.
func SetConfigLoader(loader ConfigLoader) {
	defaultConfigLoader = loader
}

// Config declares a rule-driven machine.
type Config struct {
	Name           string         `json:"name"           yaml:"name"`
	InitialState   string         `json:"initialState"   yaml:"initialState"`
	TerminalStates []string       `json:"terminalStates" yaml:"terminalStates"`
	States         []StateConfig  `json:"states"         yaml:"states"`
	Flags          []FlagConfig   `json:"flags"          yaml:"flags"`
	Signals        []SignalConfig `json:"signals"        yaml:"signals"`
	Rules          []RuleConfig   `json:"rules"          yaml:"rules"`
}

// StateConfig declares a state.
type StateConfig struct {
	Name        string `json:"name"        yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// FlagConfig declares a flag.
type FlagConfig struct {
	Name        string `json:"name"        yaml:"name"`
	Description string `json:"description" yaml:"description"`
}

// SignalConfig declares a signal that pending retries may be gated on.
type SignalConfig struct {
	Name    string `json:"name"    yaml:"name"`
	Initial bool   `json:"initial" yaml:"initial"`
}

// RuleConfig is one row of the decision table. Rules are tried in order; the
// first whose source matches and whose trigger holds wins.
type RuleConfig struct {
	From      string       `json:"from"      yaml:"from"`
	On        string       `json:"on"        yaml:"on"`     // flag consumed by the rule
	Always    bool         `json:"always"    yaml:"always"` // fire without a flag
	Operation string       `json:"operation" yaml:"operation"`
	To        string       `json:"to"        yaml:"to"`
	OnError   string       `json:"onError"   yaml:"onError"`
	Retry     *RetryConfig `json:"retry"     yaml:"retry"`
}

// RetryConfig schedules a pending flag after the rule's operation fails.
type RetryConfig struct {
	Flag       string   `json:"flag"       yaml:"flag"`
	Base       string   `json:"base"       yaml:"base"`
	Max        string   `json:"max"        yaml:"max"`
	Factor     float64  `json:"factor"     yaml:"factor"`
	Jitter     float64  `json:"jitter"     yaml:"jitter"`
	MinDelay   string   `json:"minDelay"   yaml:"minDelay"`
	Conditions []string `json:"conditions" yaml:"conditions"`
}

// LoadConfig loads a machine configuration by path or name.
//   - Path mode: a value containing '/', '\' or ending in '.yaml' is read from the filesystem.
//   - Name mode: a bare name is resolved through the loader set with SetConfigLoader.
func LoadConfig(pathOrName string) (*Config, error) {
	isPath := strings.Contains(pathOrName, "/") ||
		strings.Contains(pathOrName, `\`) ||
		strings.HasSuffix(strings.ToLower(pathOrName), ".yaml")

	if isPath {
		data, err := os.ReadFile(pathOrName) //nolint:gosec // Intentional path-based loading
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", pathOrName, err)
		}

		return LoadConfigFromBytes(data)
	}

	if defaultConfigLoader == nil {
		return nil, ErrNoConfigLoader
	}

	data, err := defaultConfigLoader.LoadByName(pathOrName)
	if err != nil {
		available := defaultConfigLoader.ListAvailable()

		return nil, fmt.Errorf("failed to load config %q (available: %v): %w", pathOrName, available, err)
	}

	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes parses and validates YAML.
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var config Config

	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadConfigFromFS loads a configuration from an embedded filesystem.
func LoadConfigFromFS(fsys fs.FS, path string) (*Config, error) {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from FS: %w", err)
	}

	return LoadConfigFromBytes(data)
}

// Validate checks if the configuration is valid.
//
//nolint:cyclop,funlen
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrConfigNameRequired)
	}

	if c.InitialState == "" {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInitialStateRequired)
	}

	if len(c.States) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrStateRequired)
	}

	states := make(map[string]bool, len(c.States))

	for _, state := range c.States {
		if state.Name == "" {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrStateNameRequired)
		}

		if states[state.Name] {
			return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrDuplicateStateName, state.Name)
		}

		states[state.Name] = true
	}

	if !states[c.InitialState] {
		return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrInitialStateNotFound, c.InitialState)
	}

	for _, terminal := range c.TerminalStates {
		if !states[terminal] {
			return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrTerminalStateNotFound, terminal)
		}
	}

	flagNames := make(map[string]bool, len(c.Flags))

	for _, flag := range c.Flags {
		if flag.Name == "" {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrFlagNameRequired)
		}

		if flagNames[flag.Name] {
			return fmt.Errorf("%w: %w: %s", ErrInvalidConfig, ErrDuplicateFlagName, flag.Name)
		}

		flagNames[flag.Name] = true
	}

	signalNames := make(map[string]bool, len(c.Signals))

	for _, sig := range c.Signals {
		if sig.Name == "" || signalNames[sig.Name] {
			return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrDuplicateSignalName, sig.Name)
		}

		signalNames[sig.Name] = true
	}

	for i, rule := range c.Rules {
		err := rule.validate(states, flagNames, signalNames)
		if err != nil {
			return fmt.Errorf("%w: rule %d: %w", ErrInvalidConfig, i, err)
		}
	}

	return nil
}

func (r RuleConfig) validate(states, flagNames, signalNames map[string]bool) error {
	if r.From == "" {
		return ErrRuleFromRequired
	}

	if r.To == "" {
		return ErrRuleToRequired
	}

	for _, s := range []string{r.From, r.To, r.OnError} {
		if s != "" && !states[s] {
			return fmt.Errorf("%w: %s", ErrUnknownState, s)
		}
	}

	if (r.On == "") == !r.Always {
		return ErrRuleTriggerRequired
	}

	if r.On != "" && !flagNames[r.On] {
		return fmt.Errorf("%w: %s", ErrUnknownFlag, r.On)
	}

	if r.Always && r.From == r.To {
		return fmt.Errorf("%w: %s", ErrAlwaysSelfLoop, r.From)
	}

	if r.Always && r.Operation != "" && r.OnError == "" && r.Retry == nil {
		return fmt.Errorf("%w: %s", ErrAlwaysRuleUnguarded, r.Operation)
	}

	if r.Retry == nil {
		return nil
	}

	if r.Retry.Flag == "" {
		return ErrRetryFlagRequired
	}

	if !flagNames[r.Retry.Flag] {
		return fmt.Errorf("retry: %w: %s", ErrUnknownFlag, r.Retry.Flag)
	}

	for _, cond := range r.Retry.Conditions {
		if !signalNames[cond] {
			return fmt.Errorf("retry: %w: %s", ErrUnknownSignal, cond)
		}
	}

	for _, d := range []string{r.Retry.Base, r.Retry.Max, r.Retry.MinDelay} {
		if _, err := parseDuration(d); err != nil {
			return fmt.Errorf("retry: %w", err)
		}
	}

	return nil
}

// Definition returns the universe the configuration declares.
func (c *Config) Definition() Definition {
	def := Definition{
		Name:    c.Name,
		Initial: State(c.InitialState),
		States:  make([]State, 0, len(c.States)),
		Flags:   make([]flags.Flag, 0, len(c.Flags)),
	}

	for _, s := range c.States {
		def.States = append(def.States, State(s.Name))
	}

	for _, f := range c.Flags {
		def.Flags = append(def.Flags, flags.Flag(f.Name))
	}

	return def
}

// IsTerminal reports whether state is declared terminal.
func (c *Config) IsTerminal(state State) bool {
	for _, s := range c.TerminalStates {
		if State(s) == state {
			return true
		}
	}

	return false
}

// ReachableStates returns the states reachable from the initial state by following rules.
func (c *Config) ReachableStates() map[string]bool {
	reachable := map[string]bool{c.InitialState: true}

	queue := []string{c.InitialState}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, rule := range c.Rules {
			if rule.From != current {
				continue
			}

			for _, next := range []string{rule.To, rule.OnError} {
				if next != "" && !reachable[next] {
					reachable[next] = true
					queue = append(queue, next)
				}
			}
		}
	}

	return reachable
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	return d, nil
}
