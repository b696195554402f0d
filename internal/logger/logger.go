// Package logger provides leveled, printf-style logging for molft.
//
// All output goes to stderr so that it never interleaves with data written to
// stdout (rendered scripts, tables, JSON). Debug messages are suppressed until
// SetDebug(true) is called, which the CLI does for --verbose.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the short tag printed in front of each line.
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

var (
	mu       sync.RWMutex
	minLevel = LevelInfo
	std      = log.New(os.Stderr, "", log.LstdFlags)
)

// SetDebug toggles debug output.
func SetDebug(enabled bool) {
	mu.Lock()
	defer mu.Unlock()
	if enabled {
		minLevel = LevelDebug
	} else {
		minLevel = LevelInfo
	}
}

// SetLevel sets the minimum level that is written.
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = level
}

// SetOutput redirects log output. Tests use it to capture messages.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std.SetOutput(w)
}

// IsDebug reports whether debug messages are currently written.
func IsDebug() bool {
	mu.RLock()
	defer mu.RUnlock()
	return minLevel <= LevelDebug
}

func logf(level Level, format string, args ...interface{}) {
	mu.RLock()
	enabled := level >= minLevel
	mu.RUnlock()
	if !enabled {
		return
	}
	std.Printf("[%s] %s", level, fmt.Sprintf(format, args...))
}

// Debug logs a message at debug level.
func Debug(format string, args ...interface{}) { logf(LevelDebug, format, args...) }

// Info logs a message at info level.
func Info(format string, args ...interface{}) { logf(LevelInfo, format, args...) }

// Warn logs a message at warning level.
func Warn(format string, args ...interface{}) { logf(LevelWarn, format, args...) }

// Error logs a message at error level.
func Error(format string, args ...interface{}) { logf(LevelError, format, args...) }
