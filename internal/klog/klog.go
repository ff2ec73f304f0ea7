// Package klog is the kernel core's leveled logger. The teacher leans on
// the standard "log" package directly (biscuit/src/kernel/chentry.go's
// log.Fatal calls); this core instead rotates its own log file the way
// gcsfuse's internal/logger wraps a github.com/natefinch/lumberjack.v2
// writer, since a long-running simulator needs bounded log files where a
// one-shot bootstrap script does not.
package klog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level orders log severity, matching the debug/info/warn/error vocabulary
// gcsfuse's logger config exposes.
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
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func parseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes leveled, timestamped lines to an io.Writer, optionally a
// rotating lumberjack file.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	min   Level
	name  string
}

// New builds a Logger named name (e.g. "sched", "vm") writing to path if
// non-empty (rotated via lumberjack with conservative defaults), and
// always also to stderr, matching gcsfuse's pattern of tee-ing to the
// console during interactive runs.
func New(name, path, level string) *Logger {
	var out io.Writer = os.Stderr
	if path != "" {
		lj := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, lj)
	}
	return &Logger{out: out, min: parseLevel(level), name: name}
}

// With returns a Logger that shares this one's output and level but is
// tagged with a different component name, for per-package loggers that
// still share one rotating file.
func (l *Logger) With(name string) *Logger {
	return &Logger{out: l.out, min: l.min, name: name}
}

func (l *Logger) log(level Level, format string, args ...any) {
	if level < l.min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	fmt.Fprintf(l.out, "%s [%s] %s: %s\n", ts, level, l.name, fmt.Sprintf(format, args...))
}

func (l *Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args...) }
