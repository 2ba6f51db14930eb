// Package debug writes component-tagged diagnostics. Output is off unless
// enabled at build time, by DEBUG=1 or by the CLI, and in MCP mode it may
// only go to a log file because stdout carries the protocol.
package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Component tags a line with the subsystem that wrote it
type Component string

const (
	Build  Component = "BUILD"
	Merge  Component = "MERGE"
	Query  Component = "QUERY"
	Server Component = "SERVER"
	MCP    Component = "MCP"
)

// EnableDebug can be overridden at build time:
// go build -ldflags "-X github.com/standardbeagle/xref/internal/debug.EnableDebug=true"
var EnableDebug = "false"

var (
	mu      sync.Mutex
	output  io.Writer
	logFile *os.File
	mcpMode atomic.Bool
)

// SetMCPMode suppresses every writer except a log file
func SetMCPMode(enabled bool) { mcpMode.Store(enabled) }

// InMCPMode reports whether SetMCPMode(true) is in effect
func InMCPMode() bool { return mcpMode.Load() }

// SetDebugOutput sets the writer for debug output; nil disables output
func SetDebugOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// OpenLogFile sends debug output to a new timestamped file below dir, or
// below $TMPDIR/xref-debug-logs when dir is empty, and returns its path.
func OpenLogFile(dir string) (string, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "xref-debug-logs")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}
	name := fmt.Sprintf("debug-%s-%d.log", time.Now().Format("2006-01-02T150405"), os.Getpid())
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f
	output = f
	return path, nil
}

// CloseLogFile closes the file opened by OpenLogFile and disables output
func CloseLogFile() error {
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	if output == io.Writer(logFile) {
		output = nil
	}
	logFile = nil
	return err
}

// IsDebugEnabled reports whether debug lines are produced at all
func IsDebugEnabled() bool {
	if EnableDebug == "true" {
		return true
	}
	v := os.Getenv("DEBUG")
	return v == "1" || v == "true"
}

// writer returns the destination for debug lines, or nil
func writer() io.Writer {
	if !IsDebugEnabled() {
		return nil
	}
	mu.Lock()
	defer mu.Unlock()
	if output == nil {
		return nil
	}
	if mcpMode.Load() && (logFile == nil || output != io.Writer(logFile)) {
		return nil
	}
	return output
}

// Log writes one tagged line when debug output is enabled
func Log(c Component, format string, args ...any) {
	w := writer()
	if w == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(w, "[DEBUG:%s] "+format, append([]any{c}, args...)...)
}

// LogBuild logs scanning, partitioning and shard dispatch
func LogBuild(format string, args ...any) { Log(Build, format, args...) }

// LogMerge logs merger and publish activity
func LogMerge(format string, args ...any) { Log(Merge, format, args...) }

func LogQuery(format string, args ...any) { Log(Query, format, args...) }

// LogServer logs HTTP boundary activity
func LogServer(format string, args ...any) { Log(Server, format, args...) }

func LogMCP(format string, args ...any) { Log(MCP, format, args...) }

// Fatal records an unrecoverable error in the debug output and returns it.
// It never exits; the caller decides.
func Fatal(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	mu.Lock()
	w := output
	suppressed := mcpMode.Load() && (logFile == nil || w != io.Writer(logFile))
	mu.Unlock()
	if w != nil && !suppressed {
		mu.Lock()
		fmt.Fprintf(w, "[FATAL] %s", msg)
		mu.Unlock()
	}
	return fmt.Errorf("fatal error: %s", msg)
}
