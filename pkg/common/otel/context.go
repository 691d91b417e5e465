package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// GetTraceID returns the trace id of the span in ctx, or "" when ctx carries
// no valid span.
func GetTraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}
