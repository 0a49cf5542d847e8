package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "bytebot"

// StartTaskSpan starts a span covering one task's processing run.
func StartTaskSpan(ctx context.Context, taskID, model string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task.process",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("task.model", model),
		),
	)
}

// StartToolCallSpan starts a span for one desktop action dispatch.
func StartToolCallSpan(ctx context.Context, taskID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("toolcall.tool", tool),
		),
	)
}
