// Package logger provides structured logging and the user-facing output
// channel for runonsave
package logger

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Fields represents structured log fields
type Fields map[string]interface{}

// Logger wraps logrus.Logger with additional functionality
type Logger struct {
	*logrus.Logger
}

// NewLogger creates a new structured logger
func NewLogger(level logrus.Level) *Logger {
	logger := logrus.New()
	logger.SetLevel(level)

	// JSON for log shippers, text for a terminal
	if os.Getenv("ENV") == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}

	return &Logger{Logger: logger}
}

// NewDiscardLogger returns a logger that drops everything. Used by tests and
// by components constructed without an explicit logger.
func NewDiscardLogger() *Logger {
	l := NewLogger(logrus.PanicLevel)
	l.SetOutput(io.Discard)
	return l
}

// LevelFor maps the verbose flag onto a logrus level
func LevelFor(verbose bool) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}
	return logrus.InfoLevel
}

// WithDocument adds document-specific fields to the logger
func (l *Logger) WithDocument(key, path string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"document": key,
		"path":     path,
	})
}

// WithRun adds run-specific fields to the logger
func (l *Logger) WithRun(runID string, pid int) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"run_id": runID,
		"pid":    pid,
	})
}

// WithError adds error context to the logger
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithFields adds multiple fields to the logger
func (l *Logger) WithFields(fields Fields) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields(fields))
}

// Default logger instance
var defaultLogger = NewLogger(logrus.InfoLevel)

// Default returns the process-wide logger
func Default() *Logger {
	return defaultLogger
}

// SetLevel sets the log level for the default logger
func SetLevel(level logrus.Level) {
	defaultLogger.SetLevel(level)
}
