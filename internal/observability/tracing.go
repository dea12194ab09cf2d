package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type otelSpan struct {
	span oteltrace.Span
}

func (s *otelSpan) End() {
	s.span.End()
}

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, toString(v)))
	}
}

func (s *otelSpan) RecordError(err error) {
	if err == nil {
		return
	}
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	if stringer, ok := v.(interface{ String() string }); ok {
		return stringer.String()
	}
	return ""
}

// tracer wraps a named OpenTelemetry tracer.
type tracer struct {
	t oteltrace.Tracer
}

// NewTracer creates a Tracer for the given instrumentation scope name. Pass
// an empty name to use the global TracerProvider's default tracer.
func NewTracer(name string) Tracer {
	return &tracer{t: otel.Tracer(name)}
}

func (tr *tracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	ctx, span := tr.t.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

type noopTracer struct{}

// NewNoopTracer returns a Tracer whose spans do nothing.
func NewNoopTracer() Tracer { return noopTracer{} }

type noopSpan struct{}

func (noopTracer) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (noopSpan) End()                             {}
func (noopSpan) SetAttribute(string, interface{}) {}
func (noopSpan) RecordError(error)                {}
