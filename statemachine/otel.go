package statemachine

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "statemachine"

// startOperationSpan creates a span around one operation's work.
// Uses the global tracer initialized by github.com/amp-labs/statekeeper/telemetry.
// The caller is responsible for calling span.End().
//
//nolint:spancheck // Span lifecycle managed by caller
func startOperationSpan(ctx context.Context, machine string, op *Operation, from State) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "operation."+op.Name)
	span.SetAttributes(
		attribute.String("machine", machine),
		attribute.String("operation", op.Name),
		attribute.String("from_state", string(from)),
		attribute.String("target_state", string(op.Target)),
	)

	if op.ErrorTarget != "" {
		span.SetAttributes(attribute.String("error_state", string(op.ErrorTarget)))
	}

	return ctx, span
}

// endOperationSpan records the outcome and ends the span.
func endOperationSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("outcome", outcomeError))
	} else {
		span.SetStatus(codes.Ok, "")
		span.SetAttributes(attribute.String("outcome", outcomeSuccess))
	}

	span.End()
}

// extractTraceContext extracts trace ID and span ID from context for logging.
func extractTraceContext(ctx context.Context) (traceID, spanID string) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		spanCtx := span.SpanContext()

		return spanCtx.TraceID().String(), spanCtx.SpanID().String()
	}

	return "", ""
}
