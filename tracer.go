package authgate

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Tracer is the tracing interface of the gateway. A span wraps one decision.
type Tracer interface {
	StartSpan(operationName string) Span
}

// Span is one traced operation.
type Span interface {
	Finish()
	SetTag(key string, value interface{})
}

// NoopTracer produces spans that record nothing.
type NoopTracer struct{}

func (t *NoopTracer) StartSpan(operationName string) Span { return &noopSpan{} }

type noopSpan struct{}

func (s *noopSpan) Finish()                              {}
func (s *noopSpan) SetTag(key string, value interface{}) {}

// OpenTelemetryTracer implements Tracer over an OpenTelemetry tracer.
type OpenTelemetryTracer struct {
	tracer oteltrace.Tracer
}

// NewOpenTelemetryTracer wraps an otel tracer.
func NewOpenTelemetryTracer(tracer oteltrace.Tracer) Tracer {
	return &OpenTelemetryTracer{tracer: tracer}
}

func (t *OpenTelemetryTracer) StartSpan(operationName string) Span {
	_, span := t.tracer.Start(context.Background(), operationName)
	return &otelSpan{span: span}
}

type otelSpan struct {
	span oteltrace.Span
}

func (s *otelSpan) Finish() {
	s.span.End()
}

func (s *otelSpan) SetTag(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprint(value)))
}
