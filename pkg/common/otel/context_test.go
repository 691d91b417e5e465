package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
)

func TestGetTraceID(t *testing.T) {
	t.Parallel()

	assert.Empty(t, GetTraceID(context.Background()))

	tid, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	assert.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(ctx))
}

func TestNewLocalMeterProvider(t *testing.T) {
	t.Parallel()

	mp := NewLocalMeterProvider("scand", map[string]string{"device.id": "d1"})
	counter, err := mp.Meter("test").Int64Counter("scans")
	assert.NoError(t, err)
	counter.Add(context.Background(), 1)
	assert.NoError(t, mp.Shutdown(context.Background()))
}
