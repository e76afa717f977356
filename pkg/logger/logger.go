// Package logger provides structured logging for the marketplace layer.
// It wraps logrus behind a small key/value API so callers never depend on
// the backend directly.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger writes structured log records tagged with a module name.
type Logger struct {
	entry *logrus.Entry
}

// Options configures a Logger.
type Options struct {
	Module string
	Level  string // trace, debug, info, warn, error; defaults to info
	Output io.Writer
	JSON   bool
}

// New creates a logger with explicit options.
func New(opts Options) *Logger {
	l := logrus.New()

	if opts.Output != nil {
		l.SetOutput(opts.Output)
	} else {
		l.SetOutput(os.Stderr)
	}

	if opts.JSON {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(strings.TrimSpace(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	module := strings.TrimSpace(opts.Module)
	if module == "" {
		module = "app"
	}

	return &Logger{entry: l.WithField("module", module)}
}

// NewDefault creates a logger for the given module with default settings.
// The level can be raised via the LOG_LEVEL environment variable.
func NewDefault(module string) *Logger {
	return New(Options{Module: module, Level: os.Getenv("LOG_LEVEL")})
}

// WithField returns a logger that always carries the given field.
func (l *Logger) WithField(key string, value any) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}

// WithError returns a logger that carries the error as a field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{entry: l.entry.WithError(err)}
}

// Debug logs at debug level with optional key/value pairs.
func (l *Logger) Debug(msg string, kv ...any) { l.entry.WithFields(fields(kv)).Debug(msg) }

// Info logs at info level with optional key/value pairs.
func (l *Logger) Info(msg string, kv ...any) { l.entry.WithFields(fields(kv)).Info(msg) }

// Warn logs at warn level with optional key/value pairs.
func (l *Logger) Warn(msg string, kv ...any) { l.entry.WithFields(fields(kv)).Warn(msg) }

// Error logs at error level with optional key/value pairs.
func (l *Logger) Error(msg string, kv ...any) { l.entry.WithFields(fields(kv)).Error(msg) }

// fields converts alternating key/value pairs into logrus fields.
// A trailing key without a value is kept with a nil value rather than dropped.
func fields(kv []any) logrus.Fields {
	if len(kv) == 0 {
		return nil
	}
	f := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		if i+1 < len(kv) {
			f[key] = kv[i+1]
		} else {
			f[key] = nil
		}
	}
	return f
}
