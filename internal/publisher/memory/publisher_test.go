package memory

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestPublisherEncodesPayloads(t *testing.T) {
	t.Parallel()

	pub := New()
	id, err := pub.Publish(context.Background(), "program-results", map[string]any{"data_id": "7", "state": "succeeded"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "program-results", msgs[0].Topic)
	require.Equal(t, "application/json", msgs[0].Attributes["content_type"])

	var got map[string]string
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "7", got["data_id"])

	msgs[0].Topic = "changed"
	require.Equal(t, "program-results", pub.Messages()[0].Topic)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "t", map[string]any{"bad": make(chan int)})
	require.Error(t, err)
}

func TestPublisherCarriesTraceContext(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	defer otel.SetTextMapPropagator(prev)

	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	pub := New()
	_, err := pub.Publish(ctx, "t", "payload")
	require.NoError(t, err)
	require.Contains(t, pub.Messages()[0].Attributes["traceparent"], span.SpanContext().TraceID().String())
}
