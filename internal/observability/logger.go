package observability

import (
	"os"

	"github.com/rs/zerolog"
)

// zerologLogger implements Logger on top of github.com/rs/zerolog.
type zerologLogger struct {
	logger zerolog.Logger
}

// NewLogger creates a Logger that writes structured JSON to stderr, prefixed
// with the given component name. Stderr keeps stdout free for anything that
// might pipe the process's primary output elsewhere.
func NewLogger(component string) Logger {
	base := zerolog.New(os.Stderr).With().Timestamp().Str("component", component).Logger()
	return &zerologLogger{logger: base}
}

func (l *zerologLogger) event(level LogLevel) *zerolog.Event {
	switch level {
	case LogLevelDebug:
		return l.logger.Debug()
	case LogLevelWarn:
		return l.logger.Warn()
	case LogLevelError:
		return l.logger.Error()
	default:
		return l.logger.Info()
	}
}

func (l *zerologLogger) log(level LogLevel, msg string, fields map[string]interface{}) {
	ev := l.event(level)
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *zerologLogger) Debug(msg string, fields map[string]interface{}) { l.log(LogLevelDebug, msg, fields) }
func (l *zerologLogger) Info(msg string, fields map[string]interface{})  { l.log(LogLevelInfo, msg, fields) }
func (l *zerologLogger) Warn(msg string, fields map[string]interface{})  { l.log(LogLevelWarn, msg, fields) }
func (l *zerologLogger) Error(msg string, fields map[string]interface{}) { l.log(LogLevelError, msg, fields) }

func (l *zerologLogger) With(fields map[string]interface{}) Logger {
	ctx := l.logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &zerologLogger{logger: ctx.Logger()}
}

func (l *zerologLogger) WithPrefix(prefix string) Logger {
	return &zerologLogger{logger: l.logger.With().Str("scope", prefix).Logger()}
}

// NewNoopLogger returns a Logger that discards everything. Useful for tests
// and for callers that disable logging entirely.
func NewNoopLogger() Logger {
	return &zerologLogger{logger: zerolog.Nop()}
}
