package observe

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the lingotutor tracer.
const tracerName = "github.com/lingotutor/lingotutor"

// tracer returns the process tracer from the globally registered provider.
func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartTurnSpan starts the span covering one tutoring turn, from raw user
// text to delivered reply. The caller must call span.End() when the turn
// finishes and should record the outcome via [MarkTurnOutcome].
func StartTurnSpan(ctx context.Context, sessionID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "tutor.turn",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
}

// MarkTurnOutcome records whether the turn found errors in the user's text.
func MarkTurnOutcome(span trace.Span, hasErrors bool) {
	span.SetAttributes(attribute.Bool("turn.has_errors", hasErrors))
}

// TraceID extracts the trace ID from the span context in ctx. Returns the
// empty string when no active span with a valid trace ID exists.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}
