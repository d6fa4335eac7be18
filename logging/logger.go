// Package logging wraps zap with the console + rotating file setup used by
// every NErase component, and redacts API keys before anything is written.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the zap logger every NErase component receives. Fields pass
// through the redaction in sensitive_filter.go before they reach a core, so
// a remove.bg key never lands in the console or the rotated file.
//
//	logger, err := logging.NewLogger(logging.Options{FilePath: "nerase.log"})
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//	logger.Named("webui").Info("HTTP server listening", zap.String("addr", addr))
type Logger struct {
	zap *zap.Logger
}

// Options configures NewLogger.
type Options struct {
	// Development selects debug level and a coloured console encoder.
	Development bool

	// FilePath is the rotating log file. Empty disables file output.
	FilePath string

	// Level overrides the level implied by Development (debug, info, warn, error).
	Level string

	// File controls rotation; zero fields fall back to defaults.
	File FileWriterConfig
}

// NewLogger tees to stdout and, when FilePath is set, to a lumberjack-rotated
// JSON file.
func NewLogger(opts Options) (*Logger, error) {
	level := zapcore.InfoLevel
	if opts.Development {
		level = zapcore.DebugLevel
	}
	level = ParseLogLevelString(opts.Level, level)

	core, err := NewMultiCore(level, opts.FilePath, opts.File, opts.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to create log core: %w", err)
	}
	return NewFromZap(zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))), nil
}

// NewFromZap wraps an existing zap logger, typically a zaptest or observer
// logger in tests.
func NewFromZap(z *zap.Logger) *Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &Logger{zap: z}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return NewFromZap(zap.NewNop())
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) { l.zap.Debug(msg, redactFields(fields)...) }
func (l *Logger) Info(msg string, fields ...zap.Field)  { l.zap.Info(msg, redactFields(fields)...) }
func (l *Logger) Warn(msg string, fields ...zap.Field)  { l.zap.Warn(msg, redactFields(fields)...) }
func (l *Logger) Error(msg string, fields ...zap.Field) { l.zap.Error(msg, redactFields(fields)...) }

// With returns a child logger whose entries all carry fields.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(redactFields(fields)...)}
}

// Named adds a sub-logger name, e.g. "lifecycle" or "webui".
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// Zap returns the underlying zap.Logger. Its output is not redacted.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

func redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}
	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

// redactField masks fields named like credentials and scrubs credentials out
// of string and error values. Transport errors quote request URLs, so errors
// are checked too.
func redactField(f zap.Field) zap.Field {
	if IsSensitiveField(f.Key) {
		return zap.String(f.Key, RedactedPlaceholder)
	}

	switch f.Type {
	case zapcore.StringType:
		if r := RedactSensitiveData(f.String); r != f.String {
			return zap.String(f.Key, r)
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			msg := err.Error()
			if r := RedactSensitiveData(msg); r != msg {
				return zap.String(f.Key, r)
			}
		}
	}
	return f
}
