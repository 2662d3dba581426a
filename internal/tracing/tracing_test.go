package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTraceIDFromContext(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))

	rec := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "unit")
	id := TraceIDFromContext(ctx)
	span.End()

	assert.Len(t, id, 32)
	ended := rec.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "unit", ended[0].Name())
	assert.Equal(t, id, ended[0].SpanContext().TraceID().String())
}

func TestInitTracingShutdown(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	shutdown, err := InitTracing(context.Background(), "tryhackme-test", "0.0.0", "127.0.0.1:4318")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
