package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity a Logger writes.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the upper-case level name used in log entries.
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
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel converts a level name into a Level. Unknown names map to LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger provides leveled logging for buildscan components.
// Entries are formatted as "[timestamp] [component] [LEVEL] message".
type Logger struct {
	component string
	level     Level
	out       io.Writer
	file      *os.File
	logger    *log.Logger
	mu        sync.Mutex
	logPath   string
	closeOnce sync.Once
}

// Option configures a Logger.
type Option func(*Logger)

// WithLevel sets the minimum level written.
func WithLevel(level Level) Option {
	return func(l *Logger) {
		l.level = level
	}
}

// WithWriter sets the destination of log entries.
func WithWriter(w io.Writer) Option {
	return func(l *Logger) {
		l.out = w
	}
}

// New creates a logger for a component. It writes to stderr at info level
// unless configured otherwise.
func New(component string, opts ...Option) *Logger {
	l := &Logger{
		component: component,
		level:     LevelInfo,
		out:       os.Stderr,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = log.New(l.out, "", 0) // We'll format timestamps ourselves
	return l
}

// NewFileLogger creates a logger that appends to <dir>/<name>.log.
//
// If the directory cannot be created or the file cannot be opened, it returns
// a logger writing to stderr along with the error, so callers can warn and
// carry on.
func NewFileLogger(dir, name, component string, opts ...Option) (*Logger, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		err = fmt.Errorf("failed to create log directory: %w", err)
		return newFallbackLogger(component, err, opts...), err
	}

	logPath := filepath.Join(dir, name+".log")

	// Open log file in append mode (multiple components may write to same file)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		err = fmt.Errorf("failed to open log file: %w", err)
		return newFallbackLogger(component, err, opts...), err
	}

	l := New(component, append(opts, WithWriter(file))...)
	l.file = file
	l.logPath = logPath
	return l, nil
}

// newFallbackLogger creates a logger that writes to stderr when file logging fails
func newFallbackLogger(component string, err error, opts ...Option) *Logger {
	l := New(component, append(opts, WithWriter(os.Stderr))...)
	l.Warnf("Failed to initialize file logging: %v", err)
	l.Warnf("Falling back to stderr logging")
	return l
}

// formatLogEntry creates a structured log entry with timestamp, component, and level
func (l *Logger) formatLogEntry(level Level, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	return fmt.Sprintf("[%s] [%s] [%s] %s", timestamp, l.component, level, message)
}

func (l *Logger) logf(level Level, format string, v ...interface{}) {
	if l == nil || level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	message := fmt.Sprintf(format, v...)
	l.logger.Println(l.formatLogEntry(level, message))
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.logf(LevelDebug, format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...interface{}) {
	l.logf(LevelInfo, format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.logf(LevelWarn, format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.logf(LevelError, format, v...)
}

// With returns a logger for a sub-component sharing this logger's destination.
func (l *Logger) With(component string) *Logger {
	return &Logger{
		component: l.component + "." + component,
		level:     l.level,
		out:       l.out,
		logger:    l.logger,
		logPath:   l.logPath,
	}
}

// Writer returns the destination of this logger
func (l *Logger) Writer() io.Writer {
	return l.out
}

// LogPath returns the path to the log file, or "" for non-file loggers
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close closes the log file. Safe to call multiple times.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	return New("discard", WithWriter(io.Discard), WithLevel(LevelError+1))
}
