package util

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// The worker, the replication goroutines and the scanner all log at once,
// so level and output are safe for concurrent use.
var (
	logLevel  atomic.Int32
	logColors atomic.Bool

	outMu sync.Mutex
	out   io.Writer = os.Stderr
)

func init() {
	logLevel.Store(int32(LevelInfo))
	logColors.Store(true)
}

type levelStyle struct {
	tag   string
	color string
}

var styles = map[LogLevel]levelStyle{
	LevelDebug: {"[DEBUG]", "\033[90m"},
	LevelInfo:  {"[INFO] ", "\033[36m"},
	LevelWarn:  {"[WARN] ", "\033[33m"},
	LevelError: {"[ERROR]", "\033[31m"},
}

var successStyle = levelStyle{"[OK]   ", "\033[32m"}

// SetVerbose enables verbose (debug) logging
func SetVerbose(verbose bool) {
	if verbose {
		logLevel.Store(int32(LevelDebug))
	}
}

// SetQuiet enables quiet mode (errors only)
func SetQuiet(quiet bool) {
	if quiet {
		logLevel.Store(int32(LevelError))
	}
}

// IsQuiet reports whether only errors are being shown
func IsQuiet() bool {
	return LogLevel(logLevel.Load()) >= LevelError
}

// SetColors enables or disables colored timestamps
func SetColors(enabled bool) {
	logColors.Store(enabled)
}

// SetLogOutput redirects log lines to w and returns a func restoring the
// previous writer
func SetLogOutput(w io.Writer) (restore func()) {
	outMu.Lock()
	prev := out
	out = w
	outMu.Unlock()
	return func() {
		outMu.Lock()
		out = prev
		outMu.Unlock()
	}
}

func logf(level LogLevel, style levelStyle, format string, args ...any) {
	if LogLevel(logLevel.Load()) > level {
		return
	}

	stamp := time.Now().Format("15:04:05")
	if logColors.Load() {
		stamp = style.color + stamp + "\033[0m"
	}
	line := fmt.Sprintf("%s %s %s\n", stamp, style.tag, fmt.Sprintf(format, args...))

	outMu.Lock()
	defer outMu.Unlock()
	io.WriteString(out, line)
}

// DebugLog logs debug messages
func DebugLog(format string, args ...any) {
	logf(LevelDebug, styles[LevelDebug], format, args...)
}

// InfoLog logs informational messages
func InfoLog(format string, args ...any) {
	logf(LevelInfo, styles[LevelInfo], format, args...)
}

// WarnLog logs warning messages
func WarnLog(format string, args ...any) {
	logf(LevelWarn, styles[LevelWarn], format, args...)
}

// ErrorLog logs error messages
func ErrorLog(format string, args ...any) {
	logf(LevelError, styles[LevelError], format, args...)
}

// SuccessLog logs success messages (shown unless quiet)
func SuccessLog(format string, args ...any) {
	logf(LevelInfo, successStyle, format, args...)
}
