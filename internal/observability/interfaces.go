// Package observability provides unified logging, metrics, and tracing for
// the candidate-search core. It follows the same consistent interface shape
// across every component: callers hold a Logger and a MetricsClient, never a
// concrete implementation.
package observability

import (
	"context"
	"time"
)

// LogLevel defines log message severity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Logger defines the structured logging interface used throughout the core.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})

	// With returns a derived logger that always includes the given fields.
	With(fields map[string]interface{}) Logger
	// WithPrefix returns a derived logger scoped to a named component.
	WithPrefix(prefix string) Logger
}

// MetricsClient defines the metrics recording interface used throughout the
// core. Implementations must be safe for concurrent use.
type MetricsClient interface {
	IncrementCounter(name string, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
	RecordDuration(name string, d time.Duration, labels map[string]string)
}

// Span represents a single unit of traced work.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Tracer starts spans. StartSpan is the sole entry point; components never
// depend on a concrete OpenTelemetry type.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
}
