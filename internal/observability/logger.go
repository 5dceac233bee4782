// Package observability carries the structured logging contract shared by
// gateway components and its zap backend.
package observability

import "sync/atomic"

// Logger is the structured logger every component accepts.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one structured key/value pair.
type Field struct {
	Key   string
	Value any
}

type loggerBox struct{ Logger }

var processLogger atomic.Pointer[loggerBox]

func init() {
	processLogger.Store(&loggerBox{noopLogger{}})
}

// SetLogger replaces the process logger. Nil restores the silent default.
func SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	processLogger.Store(&loggerBox{logger})
}

// Log returns the process logger. Components fall back to it when no logger
// is injected.
func Log() Logger {
	return processLogger.Load().Logger
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...Field) {}
func (noopLogger) Info(string, ...Field)  {}
func (noopLogger) Error(string, ...Field) {}
