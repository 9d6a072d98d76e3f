package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const requestTracerName = "kaiak-orchestrator"

func requestTracer() trace.Tracer {
	return Tracer(requestTracerName)
}

// TraceGenerateFix starts a span covering one generate_fix request's
// lifetime, from lock acquisition through event-bridge drain.
func TraceGenerateFix(ctx context.Context, sessionID, requestID string, incidentCount int) (context.Context, trace.Span) {
	ctx, span := requestTracer().Start(ctx, "orchestrator.generate_fix",
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("request_id", requestID),
		attribute.Int("incident_count", incidentCount),
	)
	return ctx, span
}

// EndRequest records the outcome of a traced request on its span.
func EndRequest(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
