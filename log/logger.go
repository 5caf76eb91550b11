package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/kataras/golog"
)

// LogLevel represents logging severity
type LogLevel int

const (
	// LogLevelDebug for detailed debugging information
	LogLevelDebug LogLevel = iota
	// LogLevelInfo for general informational messages
	LogLevelInfo
	// LogLevelWarn for warning messages
	LogLevelWarn
	// LogLevelError for error messages
	LogLevelError
	// LogLevelNone disables all logging
	LogLevelNone
)

// Logger is the leveled, printf-style logger used across the pipeline.
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
}

// NoOpLogger is a logger that doesn't log anything
type NoOpLogger struct{}

// Debug does nothing
func (l *NoOpLogger) Debug(format string, v ...any) {}

// Info does nothing
func (l *NoOpLogger) Info(format string, v ...any) {}

// Warn does nothing
func (l *NoOpLogger) Warn(format string, v ...any) {}

// Error does nothing
func (l *NoOpLogger) Error(format string, v ...any) {}

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	case LogLevelNone:
		return "NONE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// ParseLevel converts a level name such as "debug" or "WARN" into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "none", "off", "disable":
		return LogLevelNone, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

var (
	mu            sync.RWMutex
	defaultLogger Logger = NewLogger(os.Stderr, LogLevelInfo)
)

// NewLogger creates a golog backed logger writing to out.
func NewLogger(out io.Writer, level LogLevel) *GologLogger {
	glogger := golog.New()
	glogger.SetOutput(out)
	glogger.SetPrefix("[pdfqa] ")
	l := NewGologLogger(glogger)
	l.SetLevel(level)
	return l
}

// SetDefaultLogger sets the package-level logger
func SetDefaultLogger(logger Logger) {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		logger = &NoOpLogger{}
	}
	defaultLogger = logger
}

// GetDefaultLogger returns the current package-level logger
func GetDefaultLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// SetLogLevel replaces the package-level logger with a stderr logger at level.
func SetLogLevel(level LogLevel) {
	SetDefaultLogger(NewLogger(os.Stderr, level))
}

// Named returns a component logger derived from the package-level logger.
// Loggers other than GologLogger are returned unchanged.
func Named(component string) Logger {
	l := GetDefaultLogger()
	if g, ok := l.(*GologLogger); ok {
		return g.Named(component)
	}
	return l
}

// Debug logs a debug message using the package-level logger
func Debug(format string, v ...any) {
	GetDefaultLogger().Debug(format, v...)
}

// Info logs an informational message using the package-level logger
func Info(format string, v ...any) {
	GetDefaultLogger().Info(format, v...)
}

// Warn logs a warning message using the package-level logger
func Warn(format string, v ...any) {
	GetDefaultLogger().Warn(format, v...)
}

// Error logs an error message using the package-level logger
func Error(format string, v ...any) {
	GetDefaultLogger().Error(format, v...)
}
