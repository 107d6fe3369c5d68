// Package logger is prdmachine's process-wide levelled logger.
//
// Warnings and errors always reach the output (stderr by default). Debug
// and info lines appear only after SetVerbose(true). The long-running
// commands turn on UTC timestamps.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level orders log lines by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	default:
		return "ERROR"
	}
}

var (
	mu         sync.Mutex
	minLevel   = LevelWarn
	timestamps bool
	out        io.Writer = os.Stderr
	now                  = time.Now
)

// SetVerbose lowers the threshold to LevelDebug, or restores LevelWarn.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	minLevel = LevelWarn
	if v {
		minLevel = LevelDebug
	}
}

// IsVerbose reports whether debug lines are printed.
func IsVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return minLevel <= LevelDebug
}

// SetTimestamps toggles an RFC 3339 UTC prefix on every line.
func SetTimestamps(v bool) {
	mu.Lock()
	defer mu.Unlock()
	timestamps = v
}

// SetOutput redirects log lines to w.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func logf(l Level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < minLevel {
		return
	}

	line := fmt.Sprintf("[%s] %s\n", l, fmt.Sprintf(format, args...))
	if timestamps {
		line = now().UTC().Format(time.RFC3339) + " " + line
	}
	_, _ = io.WriteString(out, line)
}

func Debug(format string, args ...any) { logf(LevelDebug, format, args...) }

func Info(format string, args ...any) { logf(LevelInfo, format, args...) }

func Warn(format string, args ...any) { logf(LevelWarn, format, args...) }

func Error(format string, args ...any) { logf(LevelError, format, args...) }
