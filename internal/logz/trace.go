package logz

import (
	"bufio"
	"fmt"
	"os"
	"sync"
)

// TraceWriter appends lines to a flat log file. The replay orchestrator uses
// it as the sink for executor traces; the file is truncated on open so each
// replay overwrites the previous one.
type TraceWriter struct {
	mu   sync.Mutex
	path string
	file *os.File
	buf  *bufio.Writer
}

// NewTraceWriter opens (and truncates) the trace file at path.
func NewTraceWriter(path string) (*TraceWriter, error) {
	if path == "" {
		return nil, fmt.Errorf("trace path cannot be empty")
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file %s: %w", path, err)
	}

	return &TraceWriter{
		path: path,
		file: file,
		buf:  bufio.NewWriter(file),
	}, nil
}

// Path returns the path of the trace file.
func (w *TraceWriter) Path() string {
	return w.path
}

// WriteLine appends a single line to the trace file. The line is written
// verbatim; executor traces routinely contain % characters.
func (w *TraceWriter) WriteLine(line string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("trace writer is closed")
	}
	if _, err := w.buf.WriteString(line); err != nil {
		return fmt.Errorf("failed to write trace line: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write trace line: %w", err)
	}
	return nil
}

// Write stores a raw trace blob, typically the full text returned by the
// tracing executor.
func (w *TraceWriter) Write(trace []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return fmt.Errorf("trace writer is closed")
	}
	if _, err := w.buf.Write(trace); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	return nil
}

// Close flushes buffered data and closes the file.
func (w *TraceWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return nil
	}
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		w.file = nil
		return fmt.Errorf("failed to flush trace file: %w", err)
	}

	err := w.file.Close()
	w.file = nil
	if err != nil {
		return fmt.Errorf("failed to close trace file: %w", err)
	}
	return nil
}
