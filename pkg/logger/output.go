package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// OutputChannel is the append-only, user-visible log that command output and
// lifecycle lines are written to. It is safe for concurrent use.
type OutputChannel struct {
	name    string
	mu      sync.Mutex
	w       io.Writer
	logFile *os.File
}

// NewOutputChannel creates a channel that writes to w
func NewOutputChannel(name string, w io.Writer) *OutputChannel {
	if w == nil {
		w = io.Discard
	}
	return &OutputChannel{name: name, w: w}
}

// OpenOutputChannel creates a channel that writes to stdout and, when path is
// not empty, appends to the file at path as well.
func OpenOutputChannel(name, path string) (*OutputChannel, error) {
	if path == "" {
		return NewOutputChannel(name, os.Stdout), nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output log directory: %w", err)
	}
	logFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output log file: %w", err)
	}

	header := fmt.Sprintf("\n=== %s started: %s ===\n", name, time.Now().Format(time.RFC3339))
	if _, err := logFile.WriteString(header); err != nil {
		logFile.Close()
		return nil, fmt.Errorf("failed to write output log header: %w", err)
	}

	return &OutputChannel{
		name:    name,
		w:       io.MultiWriter(os.Stdout, logFile),
		logFile: logFile,
	}, nil
}

// Name returns the channel name
func (o *OutputChannel) Name() string {
	return o.name
}

// Write implements io.Writer; p is appended verbatim
func (o *OutputChannel) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.w.Write(p)
}

// Append writes p verbatim. Write errors are dropped.
func (o *OutputChannel) Append(p []byte) {
	_, _ = o.Write(p)
}

// AppendLine writes line followed by a newline
func (o *OutputChannel) AppendLine(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = io.WriteString(o.w, line+"\n")
}

// Close writes the footer and closes the log file, if any
func (o *OutputChannel) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.logFile == nil {
		return nil
	}
	footer := fmt.Sprintf("=== %s ended: %s ===\n", o.name, time.Now().Format(time.RFC3339))
	o.logFile.WriteString(footer)

	err := o.logFile.Close()
	o.logFile = nil
	if err != nil {
		return fmt.Errorf("failed to close output log file: %w", err)
	}
	return nil
}
