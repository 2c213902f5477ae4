// Package logger provides the process-wide log used by geoprobe packages.
// Nothing is written until Init is called.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	globalLogger *logrus.Logger
	logFile      *os.File
	mu           sync.Mutex
)

// Init initializes the global logger with the specified log file path.
func Init(logPath string, verbose bool) error {
	mu.Lock()
	defer mu.Unlock()

	// Close previous log file if exists
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	logFile = f
	globalLogger = newLogger(f, verbose)
	return nil
}

// InitWriter initializes the global logger on an arbitrary writer.
func InitWriter(w io.Writer, verbose bool) {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	globalLogger = newLogger(w, verbose)
}

func newLogger(w io.Writer, verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000000",
	})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

// Close closes the log file and stops logging.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
	globalLogger = nil
}

func logf(level logrus.Level, format string, v ...interface{}) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.Logf(level, format, v...)
	}
}

// Info logs an info message.
func Info(format string, v ...interface{}) {
	logf(logrus.InfoLevel, format, v...)
}

// Debug logs a debug message.
func Debug(format string, v ...interface{}) {
	logf(logrus.DebugLevel, format, v...)
}

// Error logs an error message.
func Error(format string, v ...interface{}) {
	logf(logrus.ErrorLevel, format, v...)
}

// Warn logs a warning message.
func Warn(format string, v ...interface{}) {
	logf(logrus.WarnLevel, format, v...)
}

// WithFields logs msg at info level with structured fields attached.
func WithFields(fields map[string]interface{}, msg string) {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		globalLogger.WithFields(logrus.Fields(fields)).Info(msg)
	}
}

// GetWriter returns the underlying writer for use by other components.
func GetWriter() io.Writer {
	mu.Lock()
	defer mu.Unlock()

	if globalLogger != nil {
		return globalLogger.Out
	}
	return io.Discard
}
