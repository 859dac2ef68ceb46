package tracing

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for conclave spans
const TracerName = "conclave"

var (
	providerOnce sync.Once
	providerErr  error
	provider     atomic.Pointer[sdktrace.TracerProvider]
)

// InitOpenTelemetry installs the process tracer provider. sampleRatio applies
// to root spans, which in conclave are deliberation rounds; submits inherit the
// round's decision. Only the first call has an effect.
func InitOpenTelemetry(serviceName, version string, sampleRatio float64) error {
	providerOnce.Do(func() {
		res, err := resource.New(context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.ServiceVersion(version),
			),
		)
		if err != nil {
			providerErr = err
			return
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio))),
			sdktrace.WithResource(res),
		)
		provider.Store(tp)
		otel.SetTracerProvider(tp)
	})
	return providerErr
}

// ShutdownOpenTelemetry flushes pending spans. It is a no-op when tracing was
// never initialized.
func ShutdownOpenTelemetry(ctx context.Context) error {
	if tp := provider.Load(); tp != nil {
		return tp.Shutdown(ctx)
	}
	return nil
}

// contextAttributes turns the deliberation identifiers carried by ctx into span attributes
func contextAttributes(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if v := GetSessionID(ctx); v != "" {
		attrs = append(attrs, attribute.String(string(SessionIDKey), v))
	}
	if v := GetRound(ctx); v > 0 {
		attrs = append(attrs, attribute.Int(string(RoundKey), v))
	}
	if v := GetAgentID(ctx); v != "" {
		attrs = append(attrs, attribute.String(string(AgentIDKey), v))
	}
	if v := GetRole(ctx); v != "" {
		attrs = append(attrs, attribute.String(string(RoleKey), v))
	}
	if v := GetTaskID(ctx); v != "" {
		attrs = append(attrs, attribute.String(string(TaskIDKey), v))
	}
	return attrs
}

// StartSpan starts a span tagged with the session, round, agent and task found
// in ctx plus attrs. The span's trace id becomes the context trace id when
// none is set, so log lines and spans correlate.
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	all := append(contextAttributes(ctx), attrs...)
	ctx, span := otel.Tracer(TracerName).Start(ctx, spanName, trace.WithAttributes(all...))

	if GetTraceID(ctx) == "" {
		if sc := span.SpanContext(); sc.IsValid() {
			ctx = WithTraceID(ctx, sc.TraceID().String())
		}
	}
	return ctx, span
}

// FailSpan marks span as failed with err. A nil err leaves the span untouched.
func FailSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
