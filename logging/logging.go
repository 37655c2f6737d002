// Package logging defines the minimal structured logging contract used by
// metricflow components. It maps onto common structured loggers so
// applications can plug in their existing logger without adapters of their
// own; zap and slog adapters ship in the box.
package logging

import (
	"log/slog"

	"go.uber.org/zap"
)

// Fields represents structured logging key/value pairs.
type Fields map[string]any

// Logger is the logging contract required by metricflow collectors and
// emitters. Implementations must be safe for concurrent use.
type Logger interface {
	With(fields Fields) Logger
	Debug(msg string, fields Fields)
	Info(msg string, fields Fields)
	Error(msg string, err error, fields Fields)
}

// NewZapLogger wraps a zap.Logger so it satisfies the Logger interface.
func NewZapLogger(log *zap.Logger) Logger {
	if log == nil {
		panic("metricflow: zap logger cannot be nil")
	}
	return &zapLogger{inner: log}
}

// NewSlogLogger wraps an slog.Logger so it satisfies the Logger interface.
func NewSlogLogger(log *slog.Logger) Logger {
	if log == nil {
		panic("metricflow: slog logger cannot be nil")
	}
	return &slogLogger{inner: log}
}

// NewNopLogger returns a Logger that discards everything. It is the default
// for components constructed without an explicit logger.
func NewNopLogger() Logger {
	return nopLogger{}
}

type zapLogger struct {
	inner *zap.Logger
}

func (z *zapLogger) With(fields Fields) Logger {
	if len(fields) == 0 {
		return z
	}
	return &zapLogger{inner: z.inner.With(toZapFields(fields)...)}
}

func (z *zapLogger) Debug(msg string, fields Fields) {
	z.inner.Debug(msg, toZapFields(fields)...)
}

func (z *zapLogger) Info(msg string, fields Fields) {
	z.inner.Info(msg, toZapFields(fields)...)
}

func (z *zapLogger) Error(msg string, err error, fields Fields) {
	zf := toZapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	z.inner.Error(msg, zf...)
}

func toZapFields(fields Fields) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	zf := make([]zap.Field, 0, len(fields))
	for key, value := range fields {
		zf = append(zf, zap.Any(key, value))
	}
	return zf
}

type slogLogger struct {
	inner *slog.Logger
}

func (s *slogLogger) With(fields Fields) Logger {
	if len(fields) == 0 {
		return s
	}
	return &slogLogger{inner: s.inner.With(toSlogArgs(fields)...)}
}

func (s *slogLogger) Debug(msg string, fields Fields) {
	s.inner.Debug(msg, toSlogArgs(fields)...)
}

func (s *slogLogger) Info(msg string, fields Fields) {
	s.inner.Info(msg, toSlogArgs(fields)...)
}

func (s *slogLogger) Error(msg string, err error, fields Fields) {
	args := toSlogArgs(fields)
	if err != nil {
		args = append(args, "error", err)
	}
	s.inner.Error(msg, args...)
}

func toSlogArgs(fields Fields) []any {
	if len(fields) == 0 {
		return nil
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	return args
}

type nopLogger struct{}

func (nopLogger) With(Fields) Logger          { return nopLogger{} }
func (nopLogger) Debug(string, Fields)        {}
func (nopLogger) Info(string, Fields)         {}
func (nopLogger) Error(string, error, Fields) {}
