package statemachine

import (
	"context"
	"log/slog"
	"time"

	"github.com/amp-labs/statekeeper/flags"
	"github.com/amp-labs/statekeeper/pending"
)

// Logger provides logging hooks for machine execution.
type Logger interface {
	OperationStarted(ctx context.Context, op string, from State)
	OperationCompleted(ctx context.Context, result Result)
	TransitionCommitted(ctx context.Context, from, to State)
	FlagRaised(ctx context.Context, flag flags.Flag)
	PendingPromoted(ctx context.Context, flag pending.Flag)
	Quiesced(ctx context.Context, state State)
}

// DefaultLogger implements Logger using slog.
type DefaultLogger struct {
	logger  *slog.Logger
	machine string
}

// NewDefaultLogger creates a logger that tags every record with the machine name.
// A nil logger falls back to slog.Default().
func NewDefaultLogger(logger *slog.Logger, machine string) *DefaultLogger {
	if logger == nil {
		logger = slog.Default()
	}

	return &DefaultLogger{
		logger:  logger,
		machine: machine,
	}
}

func (l *DefaultLogger) fields(ctx context.Context, kv ...any) []any {
	fields := append([]any{"machine", l.machine}, kv...)

	if traceID, spanID := extractTraceContext(ctx); traceID != "" {
		fields = append(fields, "trace_id", traceID, "span_id", spanID)
	}

	return fields
}

func (l *DefaultLogger) OperationStarted(ctx context.Context, op string, from State) {
	l.logger.DebugContext(ctx, "Operation started", l.fields(ctx, "operation", op, "from", from)...)
}

func (l *DefaultLogger) OperationCompleted(ctx context.Context, result Result) {
	fields := l.fields(ctx,
		"operation", result.Operation,
		"seq", result.Seq,
		"from", result.From,
		"to", result.To,
		"duration_ms", result.Duration.Milliseconds(),
	)

	if result.Err != nil {
		l.logger.ErrorContext(ctx, "Operation failed", append(fields, "error", result.Err)...)
	} else {
		l.logger.DebugContext(ctx, "Operation completed", fields...)
	}
}

func (l *DefaultLogger) TransitionCommitted(ctx context.Context, from, to State) {
	l.logger.InfoContext(ctx, "Transition committed", l.fields(ctx, "from", from, "to", to)...)
}

func (l *DefaultLogger) FlagRaised(ctx context.Context, flag flags.Flag) {
	l.logger.DebugContext(ctx, "Flag raised", l.fields(ctx, "flag", flag)...)
}

func (l *DefaultLogger) PendingPromoted(ctx context.Context, flag pending.Flag) {
	l.logger.DebugContext(ctx, "Pending flag promoted", l.fields(ctx, "flag", flag.Flag, "gates", flag.String())...)
}

func (l *DefaultLogger) Quiesced(ctx context.Context, state State) {
	l.logger.DebugContext(ctx, "Machine paused", l.fields(ctx, "state", state)...)
}

// since is time.Since with a zero start treated as no duration.
func since(start time.Time) time.Duration {
	if start.IsZero() {
		return 0
	}

	return time.Since(start)
}
