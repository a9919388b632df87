// Package logging provides the structured logger used across gallery_style.
//
// Every entry goes to two places: a console core on stderr (human readable in
// development mode, JSON otherwise) and a rotating JSON log file. Values that
// look like credentials are redacted before they reach either sink.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with credential redaction.
//
// Example:
//
//	logger, err := NewLoggerAtLevel(InfoLevel, false, "gallery.log", DefaultFileWriterConfig())
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	logger.Info("batch complete", zap.Int("images", 4))
type Logger struct {
	zap *zap.Logger
}

// NewLoggerAtLevel creates a Logger that writes to stderr and to a rotating
// file at logFilePath. Development mode switches the console encoder to
// colored text.
func NewLoggerAtLevel(level zapcore.Level, isDevelopment bool, logFilePath string, fileConfig FileWriterConfig) (*Logger, error) {
	core, err := NewMultiCore(level, logFilePath, isDevelopment, fileConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create log core: %w", err)
	}
	return NewLoggerFromCore(core), nil
}

// NewLoggerFromCore wraps an existing zapcore.Core. Tests pass an observer
// core here to assert on emitted entries.
func NewLoggerFromCore(core zapcore.Core) *Logger {
	return &Logger{zap: zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)}
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return NewLoggerFromCore(zapcore.NewNopCore())
}

// Sync flushes buffered entries. Call it before the process exits.
func (l *Logger) Sync() error {
	if l == nil || l.zap == nil {
		return nil
	}
	return l.zap.Sync()
}

func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, l.redactFields(fields)...)
}

func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, l.redactFields(fields)...)
}

func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, l.redactFields(fields)...)
}

func (l *Logger) Error(msg string, fields ...zap.Field) {
	l.zap.Error(msg, l.redactFields(fields)...)
}

// With returns a child logger that attaches fields to every entry.
//
//	runLogger := logger.With(zap.String("run_id", id))
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(l.redactFields(fields)...)}
}

// Named adds a segment to the logger name, e.g. "driver" or "webui".
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

func (l *Logger) redactFields(fields []zap.Field) []zap.Field {
	if len(fields) == 0 {
		return fields
	}

	out := make([]zap.Field, len(fields))
	for i, f := range fields {
		out[i] = redactField(f)
	}
	return out
}

// redactField masks a field by name, or string fields by content.
func redactField(field zap.Field) zap.Field {
	if field.Type == zapcore.StringType {
		if redacted := RedactField(field.Key, field.String); redacted != field.String {
			return zap.String(field.Key, redacted)
		}
		return field
	}
	if IsSensitiveField(field.Key) {
		return zap.String(field.Key, RedactedPlaceholder)
	}
	return field
}
