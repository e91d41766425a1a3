// Package logger provides structured logging for docgraph.
//
// All packages log through this facade. Output goes to stderr through a
// single logrus logger; --verbose lowers the level to debug and the worker
// switches to JSON output when running under a supervisor.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Fields is a set of structured log fields.
type Fields = logrus.Fields

var (
	mu      sync.RWMutex
	verbose bool
	base    = newBase(os.Stderr)
)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: false,
		FullTimestamp:    true,
	})
	return l
}

// SetVerbose enables or disables debug logging.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	verbose = v
	if v {
		base.SetLevel(logrus.DebugLevel)
	} else {
		base.SetLevel(logrus.InfoLevel)
	}
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	mu.RLock()
	defer mu.RUnlock()
	return verbose
}

// SetOutput sets the output writer for logs.
// Defaults to os.Stderr. Useful for testing.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// SetJSON switches between the JSON and text formatters.
func SetJSON(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		base.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Configure applies a format ("text" or "json") and verbosity in one call.
func Configure(format string, v bool) {
	SetJSON(format == "json")
	SetVerbose(v)
}

// WithField returns an entry carrying one structured field.
func WithField(key string, value any) *logrus.Entry {
	return base.WithField(key, value)
}

// WithFields returns an entry carrying several structured fields.
func WithFields(fields Fields) *logrus.Entry {
	return base.WithFields(fields)
}

// Debug logs a message at debug level. Only emitted in verbose mode.
func Debug(format string, args ...any) {
	base.Debugf(format, args...)
}

// Section logs a pipeline section header in verbose mode.
func Section(name string) {
	base.WithField("section", name).Debug(fmt.Sprintf("=== %s ===", name))
}

// Info logs an informational message.
func Info(format string, args ...any) {
	base.Infof(format, args...)
}

// Warn logs a warning.
func Warn(format string, args ...any) {
	base.Warnf(format, args...)
}

// Error logs an error.
func Error(format string, args ...any) {
	base.Errorf(format, args...)
}
