// Package output handles logging and the rendering of tool results.
package output

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a text logger writing to w. Debug records are kept
// only when verbose is set.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// OpenLogger logs to the file at path, or to stderr when path is empty.
// Stdout is never used: in stdio mode it carries the protocol.
// The returned closer must be called on shutdown.
func OpenLogger(path string, verbose bool) (*slog.Logger, io.Closer, error) {
	if path == "" {
		return NewLogger(os.Stderr, verbose), nopCloser{}, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return NewLogger(f, verbose), f, nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return NewLogger(io.Discard, false)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
