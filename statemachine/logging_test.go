package statemachine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/pending"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingLogger) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recordingLogger) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.events...)
}

func (r *recordingLogger) OperationStarted(_ context.Context, op string, from State) {
	r.add("started %s from %s", op, from)
}

func (r *recordingLogger) OperationCompleted(_ context.Context, result Result) {
	r.add("completed %s#%d", result.Operation, result.Seq)
}

func (r *recordingLogger) TransitionCommitted(_ context.Context, from, to State) {
	r.add("transition %s->%s", from, to)
}

func (r *recordingLogger) FlagRaised(_ context.Context, flag flags.Flag) {
	r.add("raised %s", flag)
}

func (r *recordingLogger) PendingPromoted(_ context.Context, flag pending.Flag) {
	r.add("promoted %s", flag.Flag)
}

func (r *recordingLogger) Quiesced(_ context.Context, state State) {
	r.add("quiesced %s", state)
}

func TestMachine_EventHooks(t *testing.T) {
	t.Parallel()

	events := &recordingLogger{}
	m := startDoor(t, doorEngine(), WithEventLogger(events))

	m.RegisterPending(pending.New(flagOpen, pending.WithDelay(10*time.Millisecond)))
	require.True(t, m.Condition(open).Wait(time.Second))
	settle(t, m)

	assert.Equal(t, []string{
		"quiesced closed",
		"promoted open",
		"raised open",
		"started openDoor from closed",
		"completed openDoor#1",
		"transition closed->open",
		"quiesced open",
	}, events.Events())
}

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	log := NewDefaultLogger(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), "door")

	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID,
		SpanID:  spanID,
	}))

	log.TransitionCommitted(ctx, closed, open)
	log.OperationCompleted(context.Background(), Result{Seq: 3, Operation: "kick", From: closed, To: broken, Err: errJammed})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var transition, failure map[string]any

	require.NoError(t, json.Unmarshal([]byte(lines[0]), &transition))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &failure))

	assert.Equal(t, "INFO", transition["level"])
	assert.Equal(t, "door", transition["machine"])
	assert.Equal(t, "open", transition["to"])
	assert.Equal(t, traceID.String(), transition["trace_id"])
	assert.Equal(t, spanID.String(), transition["span_id"])

	assert.Equal(t, "ERROR", failure["level"])
	assert.Equal(t, "Operation failed", failure["msg"])
	assert.Equal(t, errJammed.Error(), failure["error"])
	assert.NotContains(t, failure, "trace_id")
}
