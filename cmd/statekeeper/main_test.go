package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/amp-labs/statekeeper/cli"
	"github.com/amp-labs/statekeeper/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trustConfig = "../../statemachine/testdata/trust.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	t.Setenv(telemetry.EnvEndpoint, "")
	t.Setenv(cli.EnvNoBanner, "1")

	var stdout, stderr bytes.Buffer

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetContext(t.Context())

	err := root.Execute()

	return stdout.String(), err
}

//nolint:paralleltest // Commands configure global logging
func TestValidateCommand(t *testing.T) {
	out, err := execute(t, "validate", trustConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "trust.yaml is valid")

	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("name: broken\n"), 0o600))

	out, err = execute(t, "validate", trustConfig, broken)
	require.ErrorIs(t, err, errInvalidConfigs)
	assert.Contains(t, out, "trust.yaml is valid")
	assert.Contains(t, out, "broken.yaml")
}

//nolint:paralleltest // Commands configure global logging
func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", "--raw", trustConfig)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "stateDiagram-v2"))
	assert.Contains(t, out, "untrusted --> trusted")

	path := filepath.Join(t.TempDir(), "trust.mmd")
	_, err = execute(t, "graph", "--output", path, trustConfig)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "```mermaid")
}

//nolint:paralleltest // Commands configure global logging
func TestRunCommandScript(t *testing.T) {
	out, err := execute(t, "run", "--work-delay", "5ms", "--script", "fetch,revoke", trustConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "machine trust: state=revoked paused")
	assert.Contains(t, out, "last=trusted->revoked#2")

	out, err = execute(t, "run", "--work-delay", "5ms", "--fail", "fetchZone",
		"--script", "reachable=false,fetch", trustConfig)
	require.NoError(t, err)
	assert.Contains(t, out, "state=failed paused")
	assert.Contains(t, out, "pending=[retryFetch(")
	assert.Contains(t, out, "simulated failure")

	_, err = execute(t, "run", "--script", "teleport", trustConfig)
	require.ErrorIs(t, err, errUnknownStep)
}

//nolint:paralleltest // Commands configure global logging
func TestRootRejectsBadLogLevel(t *testing.T) {
	_, err := execute(t, "--log-level", "chatty", "graph", trustConfig)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
