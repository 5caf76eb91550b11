package log

import (
	"sync/atomic"

	"github.com/kataras/golog"
)

// GologLogger implements Logger on kataras/golog. Filtering happens in the
// wrapper so that loggers derived with Named follow later SetLevel calls.
type GologLogger struct {
	logger *golog.Logger
	level  *atomic.Int32
}

var _ Logger = (*GologLogger)(nil)

var gologLevels = map[LogLevel]golog.Level{
	LogLevelDebug: golog.DebugLevel,
	LogLevelInfo:  golog.InfoLevel,
	LogLevelWarn:  golog.WarnLevel,
	LogLevelError: golog.ErrorLevel,
}

// NewGologLogger wraps an existing golog.Logger at info level.
func NewGologLogger(logger *golog.Logger) *GologLogger {
	// golog itself lets everything through
	logger.SetLevel("debug")
	l := &GologLogger{logger: logger, level: new(atomic.Int32)}
	l.level.Store(int32(LogLevelInfo))
	return l
}

// Named returns a logger whose lines carry component after the parent
// prefix. It shares the parent's level.
func (l *GologLogger) Named(component string) *GologLogger {
	child := l.logger.Child(component)
	child.SetLevel("debug")
	return &GologLogger{logger: child, level: l.level}
}

func (l *GologLogger) logf(level LogLevel, format string, v ...any) {
	if level < l.GetLevel() {
		return
	}
	l.logger.Logf(gologLevels[level], format, v...)
}

// Debug logs debug messages
func (l *GologLogger) Debug(format string, v ...any) {
	l.logf(LogLevelDebug, format, v...)
}

// Info logs informational messages
func (l *GologLogger) Info(format string, v ...any) {
	l.logf(LogLevelInfo, format, v...)
}

// Warn logs warning messages
func (l *GologLogger) Warn(format string, v ...any) {
	l.logf(LogLevelWarn, format, v...)
}

// Error logs error messages
func (l *GologLogger) Error(format string, v ...any) {
	l.logf(LogLevelError, format, v...)
}

// SetLevel changes the level of l and every logger derived from it.
func (l *GologLogger) SetLevel(level LogLevel) {
	l.level.Store(int32(level))
}

// GetLevel returns the current log level
func (l *GologLogger) GetLevel() LogLevel {
	return LogLevel(l.level.Load())
}
