package rabbitmq

import (
	"context"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func TestCalculateBackoff(t *testing.T) {
	c := &Consumer{baseDelay: time.Second}
	assert.Equal(t, time.Second, c.calculateBackoff(1))
	assert.Equal(t, 4*time.Second, c.calculateBackoff(3))
	assert.Equal(t, 60*time.Second, c.calculateBackoff(10))
}

func TestAttemptOf(t *testing.T) {
	assert.Equal(t, 1, attemptOf(amqp.Delivery{}))
	assert.Equal(t, 2, attemptOf(amqp.Delivery{Redelivered: true}))
	assert.Equal(t, 3, attemptOf(amqp.Delivery{
		Headers: amqp.Table{"x-death": []interface{}{amqp.Table{}, amqp.Table{}}},
	}))
}

func TestTraceRoundTripsThroughHeaders(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "submit")
	defer span.End()

	headers := injectTrace(ctx)
	require.Contains(t, headers, "traceparent")

	got := trace.SpanContextFromContext(extractTrace(context.Background(), headers))
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
	assert.True(t, got.IsRemote())
}

func TestExtractTraceWithoutHeaders(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, extractTrace(ctx, nil))
}
