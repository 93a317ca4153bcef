// Package log provides the structured logging interface used by every
// pipeline stage.
//
// The interface is slog-compatible (key/value pairs, With chaining, level
// checks) and is backed by github.com/rs/zerolog. Stages obtain a named
// logger and attach the standard attribute keys defined in attributes.go:
//
//	logger := log.GetLoggerWithName("ensemble.forest").With(
//	    log.RunIDKey, runID,
//	)
//	logger.Info("Fitting forest",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, rows,
//	    log.FeaturesKey, cols,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with Go's log/slog.
//
// Fields are alternating key/value pairs. A value implementing error is
// logged under its key together with its stack trace when one is available.
type Logger interface {
	// Debug logs detailed diagnostic information, e.g. per-tree progress.
	Debug(msg string, fields ...any)

	// Info logs stage transitions and summary statistics.
	Info(msg string, fields ...any)

	// Warn logs recoverable conditions such as skipped degenerate features.
	Warn(msg string, fields ...any)

	// Error logs a failed stage.
	Error(msg string, fields ...any)

	// With returns a new Logger with the given fields pre-populated.
	With(fields ...any) Logger

	// Enabled reports whether the logger emits records at the given level.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers; it lets tests inject a capturing backend.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum log level for all loggers created by this provider.
	SetLevel(level Level)
}
