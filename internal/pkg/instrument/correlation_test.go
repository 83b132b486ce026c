package instrument

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestCorrelationID(t *testing.T) {
	if got := GetCorrelationID(context.Background()); got != "" {
		t.Fatalf("GetCorrelationID(empty) = %q", got)
	}
	ctx := SetCorrelationID(context.Background(), "abc")
	if got := GetCorrelationID(ctx); got != "abc" {
		t.Fatalf("GetCorrelationID() = %q, want abc", got)
	}
}

func TestTracePropagation(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTrace(ctx)
	if headers["traceparent"] == "" {
		t.Fatalf("InjectTrace() = %v, want traceparent", headers)
	}

	got := trace.SpanContextFromContext(ExtractTrace(context.Background(), headers))
	if got.TraceID() != sc.TraceID() || got.SpanID() != sc.SpanID() {
		t.Fatalf("ExtractTrace() span context = %v, want %v", got, sc)
	}

	if ctx := ExtractTrace(context.Background(), nil); trace.SpanContextFromContext(ctx).IsValid() {
		t.Fatal("ExtractTrace(nil) should not invent a span context")
	}
}
