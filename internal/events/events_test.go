package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrKroemer/BarApp-WPA-Web/internal/logging"
)

func tracedContext(t *testing.T) (context.Context, trace.SpanContext) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	return trace.ContextWithSpanContext(context.Background(), sc), sc
}

func TestInjectTraceAddsTraceparent(t *testing.T) {
	ctx, sc := tracedContext(t)

	headers := injectTrace(ctx, []kafka.Header{{Key: "event-type", Value: []byte(OrderCreated)}})

	assert.Equal(t, OrderCreated, headerValue(headers, "event-type"))
	assert.Equal(t, "00-"+sc.TraceID().String()+"-"+sc.SpanID().String()+"-01", headerValue(headers, "traceparent"))
}

func TestInjectTraceWithoutSpanKeepsHeaders(t *testing.T) {
	tracedContext(t)
	headers := injectTrace(context.Background(), []kafka.Header{{Key: "event-type", Value: []byte(DayClosed)}})
	assert.Len(t, headers, 1)
}

func TestBuildMessage(t *testing.T) {
	ctx, _ := tracedContext(t)
	at := time.Date(2026, 10, 16, 22, 0, 0, 0, time.UTC)

	msg, err := buildMessage(ctx, Event{Type: OrderStatusChanged, Key: "ord-1", CustomerID: "usr-1", At: at,
		Attributes: map[string]string{"from": "READY", "to": "DELIVERED"}})
	require.NoError(t, err)

	assert.Equal(t, "ord-1", string(msg.Key))
	assert.Equal(t, at, msg.Time)
	assert.Equal(t, OrderStatusChanged, headerValue(msg.Headers, "event-type"))
	assert.NotEmpty(t, headerValue(msg.Headers, "traceparent"))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "usr-1", decoded.CustomerID)
	assert.Equal(t, "DELIVERED", decoded.Attributes["to"])
}

func TestBuildMessageStampsTime(t *testing.T) {
	msg, err := buildMessage(context.Background(), Event{Type: StockMoved, Key: "prd-1"})
	require.NoError(t, err)
	assert.False(t, msg.Time.IsZero())
}

func TestLogFailuresReportsEachMessage(t *testing.T) {
	var buf bytes.Buffer
	complete := logFailures(logging.NewWithWriter(&buf, "info"))

	complete([]kafka.Message{{Key: []byte("ord-1"), Headers: []kafka.Header{{Key: "event-type", Value: []byte(OrderCreated)}}}}, nil)
	assert.Zero(t, buf.Len())

	complete([]kafka.Message{
		{Key: []byte("ord-1"), Headers: []kafka.Header{{Key: "event-type", Value: []byte(OrderCreated)}}},
		{Key: []byte("ord-2")},
	}, errors.New("broker unreachable"))
	out := buf.String()
	assert.Contains(t, out, `"key":"ord-1"`)
	assert.Contains(t, out, `"type":"order.created"`)
	assert.Contains(t, out, `"key":"ord-2"`)
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("event delivery failed")))
}

func TestRecorderFiltersByType(t *testing.T) {
	r := &Recorder{}
	require.NoError(t, r.Publish(context.Background(), Event{Type: OrderCreated, Key: "a"}))
	require.NoError(t, r.Publish(context.Background(), Event{Type: DayClosed, Key: "2026-10-16"}))
	require.NoError(t, r.Publish(context.Background(), Event{Type: OrderCreated, Key: "b"}))

	assert.Len(t, r.Events(), 3)
	created := r.OfType(OrderCreated)
	require.Len(t, created, 2)
	assert.Equal(t, "b", created[1].Key)
	assert.Empty(t, r.OfType(CashbackGranted))

	events := r.Events()
	events[0].Key = "changed"
	assert.Equal(t, "a", r.Events()[0].Key)
}
