package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewTracerFromProvider(tp, "test"), recorder
}

func TestNewTracerWithoutEndpoint(t *testing.T) {
	tracer, shutdown, err := NewTracer(context.Background(), TraceConfig{})
	if err != nil {
		t.Fatalf("NewTracer: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	_, span := tracer.Start(context.Background(), "noop")
	span.End()
}

func TestWithSpanRecordsAttributesAndErrors(t *testing.T) {
	tracer, recorder := recordingTracer(t)

	err := WithSpan(context.Background(), tracer, "evaluation", func(ctx context.Context, span trace.Span) error {
		if TraceID(ctx) == "" {
			t.Error("expected an active trace id inside the span")
		}
		SetAttributes(span, "accepted", false, "delta", 0.0)
		return errors.New("champion load failed")
	}, "bucket", "stroke-models")
	if err == nil {
		t.Fatal("expected fn error to be returned")
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "evaluation" {
		t.Errorf("span name = %q", s.Name())
	}
	if s.Status().Code != codes.Error {
		t.Errorf("status = %v, want error", s.Status().Code)
	}
	want := map[attribute.Key]bool{"bucket": false, "accepted": false, "delta": false}
	for _, kv := range s.Attributes() {
		if _, ok := want[kv.Key]; ok {
			want[kv.Key] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Errorf("missing attribute %s", k)
		}
	}
}

func TestWithSpanSuccess(t *testing.T) {
	tracer, recorder := recordingTracer(t)
	if err := WithSpan(context.Background(), tracer, "ingestion", func(context.Context, trace.Span) error { return nil }); err != nil {
		t.Fatalf("WithSpan: %v", err)
	}
	if got := recorder.Ended()[0].Status().Code; got == codes.Error {
		t.Error("successful span marked as error")
	}
}

func TestAttributeFromValue(t *testing.T) {
	tests := []struct {
		val  any
		want attribute.Type
	}{
		{"s", attribute.STRING},
		{3, attribute.INT64},
		{int64(3), attribute.INT64},
		{0.5, attribute.FLOAT64},
		{true, attribute.BOOL},
		{[]string{"a"}, attribute.STRINGSLICE},
		{struct{}{}, attribute.STRING},
	}
	for _, tt := range tests {
		if got := attributeFromValue("k", tt.val).Value.Type(); got != tt.want {
			t.Errorf("attributeFromValue(%T) type = %v, want %v", tt.val, got, tt.want)
		}
	}
}
