package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "eventweb"

// StartCommandSpan starts a span for handling command against a stream.
func StartCommandSpan(ctx context.Context, command, streamID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "command "+command,
		trace.WithAttributes(
			attribute.String("command", command),
			attribute.String("stream.id", streamID),
		),
	)
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
