package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestStartSpanTagsDeliberationContext(t *testing.T) {
	recorder := installRecorder(t)

	ctx := ForTask(WithSessionID(context.Background(), "s-1"), "tech-id", "tech", 2, "task-9")
	_, span := StartSpan(ctx, "workerpool.submit", attribute.Int("tasks", 3))
	span.End()

	ended := recorder.Ended()
	if len(ended) != 1 {
		t.Fatalf("expected 1 span, got %d", len(ended))
	}
	got := map[attribute.Key]attribute.Value{}
	for _, kv := range ended[0].Attributes() {
		got[kv.Key] = kv.Value
	}
	if got["session_id"].AsString() != "s-1" {
		t.Errorf("session_id = %q", got["session_id"].AsString())
	}
	if got["round"].AsInt64() != 2 {
		t.Errorf("round = %d", got["round"].AsInt64())
	}
	if got["agent_id"].AsString() != "tech-id" || got["role"].AsString() != "tech" {
		t.Errorf("agent attributes = %v", got)
	}
	if got["task_id"].AsString() != "task-9" {
		t.Errorf("task_id = %q", got["task_id"].AsString())
	}
	if got["tasks"].AsInt64() != 3 {
		t.Errorf("tasks = %d", got["tasks"].AsInt64())
	}
}

func TestStartSpanTraceID(t *testing.T) {
	installRecorder(t)

	ctx, root := StartSpan(context.Background(), "deliberation.round")
	defer root.End()
	if GetTraceID(ctx) != root.SpanContext().TraceID().String() {
		t.Errorf("trace id %q not taken from span", GetTraceID(ctx))
	}
}

func TestStartSpanKeepsExistingTraceID(t *testing.T) {
	installRecorder(t)

	ctx, span := StartSpan(WithTraceID(context.Background(), "trace-1"), "deliberation.round")
	defer span.End()

	if GetTraceID(ctx) != "trace-1" {
		t.Errorf("trace id overwritten: %q", GetTraceID(ctx))
	}
}

func TestFailSpan(t *testing.T) {
	recorder := installRecorder(t)

	_, ok := StartSpan(context.Background(), "ok")
	FailSpan(ok, nil)
	ok.End()

	_, failed := StartSpan(context.Background(), "failed")
	FailSpan(failed, errors.New("worker timed out"))
	failed.End()

	ended := recorder.Ended()
	if len(ended) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(ended))
	}
	if ended[0].Status().Code != codes.Unset {
		t.Errorf("nil error changed status to %v", ended[0].Status().Code)
	}
	if ended[1].Status().Code != codes.Error || ended[1].Status().Description != "worker timed out" {
		t.Errorf("status = %+v", ended[1].Status())
	}
	if len(ended[1].Events()) != 1 {
		t.Errorf("expected recorded error event, got %d events", len(ended[1].Events()))
	}
}

func TestShutdownWithoutProvider(t *testing.T) {
	if provider.Load() != nil {
		t.Skip("provider installed by another test")
	}
	if err := ShutdownOpenTelemetry(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
