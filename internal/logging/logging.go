// Package logging provides the timestamped, identity-prefixed append-only
// logger both seed and peer processes use: write to stdout and to a
// shared file, never let a closed/unwritable file crash the caller.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Logger writes "[Role N] [timestamp] msg" lines to stdout and an
// append-only file.
type Logger struct {
	mu     sync.Mutex
	role   string
	ident  string
	file   *os.File
	std    *log.Logger
	fileLg *log.Logger
}

// New opens (or creates) path in append mode and returns a Logger that
// tags every line with "[role ident]". If path is empty, only stdout is
// used — useful for tests that don't want file I/O side effects.
func New(role, ident, path string) (*Logger, error) {
	l := &Logger{
		role:  role,
		ident: ident,
		std:   log.New(os.Stdout, "", 0),
	}

	if path == "" {
		l.fileLg = log.New(io.Discard, "", 0)
		return l, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	l.file = f
	l.fileLg = log.New(f, "", 0)
	return l, nil
}

const timeLayout = "2006-01-02 15:04:05"

// Logf formats and writes one log line in
// "[Seed 5000] [2024-01-01 00:00:00] message" shape.
func (l *Logger) Logf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := fmt.Sprintf("[%s %s] [%s] %s", l.role, l.ident, time.Now().Format(timeLayout), fmt.Sprintf(format, args...))
	l.std.Println(entry)
	l.fileLg.Println(entry)
}

// Close releases the underlying file handle, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
