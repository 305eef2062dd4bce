package statemachine

import (
	"errors"
	"testing"
	"testing/fstest"

	"github.com/amp-labs/statekeeper/flags"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trustConfigPath = "testdata/trust.yaml"

type mapLoader map[string][]byte

func (l mapLoader) LoadByName(name string) ([]byte, error) {
	data, ok := l[name]
	if !ok {
		return nil, errors.New("not found")
	}

	return data, nil
}

func (l mapLoader) ListAvailable() []string {
	out := make([]string, 0, len(l))
	for name := range l {
		out = append(out, name)
	}

	return out
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	config, err := LoadConfig(trustConfigPath)
	require.NoError(t, err)

	assert.Equal(t, "trust", config.Name)
	assert.Equal(t, "untrusted", config.InitialState)
	assert.Len(t, config.States, 4)
	assert.Len(t, config.Rules, 5)
	assert.True(t, config.IsTerminal("revoked"))
	assert.False(t, config.IsTerminal("failed"))

	// The retry block is shared through a YAML anchor.
	require.NotNil(t, config.Rules[1].Retry)
	assert.Equal(t, config.Rules[0].Retry, config.Rules[1].Retry)
	assert.Equal(t, []string{"unlocked", "reachable"}, config.Rules[1].Retry.Conditions)

	def := config.Definition()
	require.NoError(t, def.Validate())
	assert.Equal(t, State("untrusted"), def.Initial)
	assert.Equal(t, []flags.Flag{"fetch", "refresh", "retryFetch", "revoke"}, def.Flags)

	assert.Equal(t, map[string]bool{
		"untrusted": true,
		"trusted":   true,
		"failed":    true,
		"revoked":   true,
	}, config.ReachableStates())
}

func TestLoadConfig_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig("testdata/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

//nolint:paralleltest // Test modifies the global config loader
func TestLoadConfig_ByName(t *testing.T) {
	SetConfigLoader(nil)

	_, err := LoadConfig("trust")
	require.ErrorIs(t, err, ErrNoConfigLoader)

	config, err := LoadConfigFromFS(fstest.MapFS{
		"machines/trust.yaml": {Data: []byte(minimalConfig)},
	}, "machines/trust.yaml")
	require.NoError(t, err)
	assert.Equal(t, "minimal", config.Name)

	SetConfigLoader(mapLoader{"minimal": []byte(minimalConfig)})
	t.Cleanup(func() { SetConfigLoader(nil) })

	config, err = LoadConfig("minimal")
	require.NoError(t, err)
	assert.Equal(t, "minimal", config.Name)

	_, err = LoadConfig("absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "available: [minimal]")
}

const minimalConfig = `
name: minimal
initialState: a
states:
  - name: a
  - name: b
flags:
  - name: go
rules:
  - from: a
    on: go
    to: b
`

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Name:         "door",
			InitialState: "closed",
			States:       []StateConfig{{Name: "closed"}, {Name: "open"}},
			Flags:        []FlagConfig{{Name: "open"}, {Name: "retry"}},
			Signals:      []SignalConfig{{Name: "reachable", Initial: true}},
			Rules:        []RuleConfig{{From: "closed", On: "open", To: "open"}},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"valid", func(*Config) {}, nil},
		{"no name", func(c *Config) { c.Name = "" }, ErrConfigNameRequired},
		{"no initial", func(c *Config) { c.InitialState = "" }, ErrInitialStateRequired},
		{"no states", func(c *Config) { c.States = nil }, ErrStateRequired},
		{"unnamed state", func(c *Config) { c.States = append(c.States, StateConfig{}) }, ErrStateNameRequired},
		{"duplicate state", func(c *Config) { c.States = append(c.States, StateConfig{Name: "open"}) }, ErrDuplicateStateName},
		{"unknown initial", func(c *Config) { c.InitialState = "ajar" }, ErrInitialStateNotFound},
		{"unknown terminal", func(c *Config) { c.TerminalStates = []string{"ajar"} }, ErrTerminalStateNotFound},
		{"unnamed flag", func(c *Config) { c.Flags = append(c.Flags, FlagConfig{}) }, ErrFlagNameRequired},
		{"duplicate flag", func(c *Config) { c.Flags = append(c.Flags, FlagConfig{Name: "open"}) }, ErrDuplicateFlagName},
		{
			"duplicate signal",
			func(c *Config) { c.Signals = append(c.Signals, SignalConfig{Name: "reachable"}) },
			ErrDuplicateSignalName,
		},
		{"rule without from", func(c *Config) { c.Rules[0].From = "" }, ErrRuleFromRequired},
		{"rule without to", func(c *Config) { c.Rules[0].To = "" }, ErrRuleToRequired},
		{"rule to unknown state", func(c *Config) { c.Rules[0].To = "ajar" }, ErrUnknownState},
		{"rule error target unknown", func(c *Config) { c.Rules[0].OnError = "ajar" }, ErrUnknownState},
		{"rule without trigger", func(c *Config) { c.Rules[0].On = "" }, ErrRuleTriggerRequired},
		{"rule with both triggers", func(c *Config) { c.Rules[0].Always = true }, ErrRuleTriggerRequired},
		{"rule on unknown flag", func(c *Config) { c.Rules[0].On = "kick" }, ErrUnknownFlag},
		{
			"always self loop",
			func(c *Config) { c.Rules[0] = RuleConfig{From: "open", Always: true, To: "open"} },
			ErrAlwaysSelfLoop,
		},
		{
			"always operation without fallback",
			func(c *Config) {
				c.Rules[0] = RuleConfig{From: c.Rules[0].From, Always: true, Operation: "boot", To: c.Rules[0].To}
			},
			ErrAlwaysRuleUnguarded,
		},
		{"retry without flag", func(c *Config) { c.Rules[0].Retry = &RetryConfig{} }, ErrRetryFlagRequired},
		{"retry unknown flag", func(c *Config) { c.Rules[0].Retry = &RetryConfig{Flag: "again"} }, ErrUnknownFlag},
		{
			"retry unknown signal",
			func(c *Config) { c.Rules[0].Retry = &RetryConfig{Flag: "retry", Conditions: []string{"unlocked"}} },
			ErrUnknownSignal,
		},
		{
			"retry bad duration",
			func(c *Config) { c.Rules[0].Retry = &RetryConfig{Flag: "retry", Base: "soon"} },
			ErrInvalidDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			config := valid()
			tt.mutate(&config)

			err := config.Validate()
			if tt.want == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, ErrInvalidConfig)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfigFromBytes_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromBytes([]byte("name: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")

	_, err = LoadConfigFromBytes([]byte("name: nameless-machine\n"))
	require.ErrorIs(t, err, ErrInvalidConfig)
}
