package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) { //nolint:paralleltest
	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{
		Subsystem: "test",
		JSON:      true,
		Output:    &buf,
	})

	Get().Info("default subsystem")

	ctx := With(WithSubsystem(t.Context(), "machine"), "machine", "trust")
	Get(ctx).Info("overridden subsystem")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any

	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))

	assert.Equal(t, "test", first["subsystem"])
	assert.Equal(t, "machine", second["subsystem"])
	assert.Equal(t, "trust", second["machine"])
}

func TestMuted(t *testing.T) { //nolint:paralleltest
	var buf bytes.Buffer

	ConfigureLoggingWithOptions(Options{Subsystem: "test", Output: &buf})

	Get(WithMuted(t.Context(), true)).Error("should not appear")

	assert.Empty(t, buf.String())
}

func TestWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(WithSubsystem(t.Context(), "custom"), base)

	Get(ctx).Info("hello")

	assert.Contains(t, buf.String(), "subsystem=custom")
	assert.Contains(t, buf.String(), "msg=hello")
}
