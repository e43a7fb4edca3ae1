// Package otelspan implements microapi.SpanStarter with OpenTelemetry.
package otelspan

import (
	"context"
	"maps"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ScopeName is the instrumentation scope used for gate spans.
const ScopeName = "github.com/bjaus/microapi"

// Starter opens one internal span per gate run.
type Starter struct {
	tracer trace.Tracer
}

// New returns a Starter using tp. A nil provider uses the global one.
func New(tp trace.TracerProvider) *Starter {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Starter{tracer: tp.Tracer(ScopeName)}
}

// StartSpan implements microapi.SpanStarter.
func (s *Starter) StartSpan(ctx context.Context, name string, attrs map[string]string) (context.Context, func()) {
	kv := make([]attribute.KeyValue, 0, len(attrs))
	for _, key := range slices.Sorted(maps.Keys(attrs)) {
		kv = append(kv, attribute.String(key, attrs[key]))
	}

	ctx, span := s.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(kv...),
	)
	return ctx, func() { span.End() }
}
