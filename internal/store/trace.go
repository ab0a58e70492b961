package store

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// TraceEntry is one line of a run's trace.jsonl.
type TraceEntry struct {
	Stage     string  `json:"stage"`
	ElapsedMs float64 `json:"elapsedMs"`
	// Error is empty when the stage succeeded.
	Error     string    `json:"error,omitempty"`
	Fatal     bool      `json:"fatal,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TraceWriter streams stage entries into a run's trace. Entries are
// buffered until Close, except that a fatal entry pushes everything
// written so far to disk.
type TraceWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

func (fs *FSStore) tracePath(runID string) string {
	return filepath.Join(fs.RunDir(runID), "trace.jsonl")
}

// OpenTrace starts a new trace for runID, replacing any previous one.
func (fs *FSStore) OpenTrace(runID string) (*TraceWriter, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	if err := os.MkdirAll(fs.RunDir(runID), 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	file, err := os.Create(fs.tracePath(runID))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace file: %w", err)
	}

	buf := bufio.NewWriter(file)
	enc := json.NewEncoder(buf)
	// Keep the "<program source>" prefix of build logs literal.
	enc.SetEscapeHTML(false)
	return &TraceWriter{file: file, buf: buf, enc: enc}, nil
}

// Write appends entry. It is safe for concurrent use.
func (tw *TraceWriter) Write(entry TraceEntry) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if err := tw.enc.Encode(entry); err != nil {
		return fmt.Errorf("failed to encode trace entry: %w", err)
	}
	if !entry.Fatal {
		return nil
	}
	if err := tw.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush trace: %w", err)
	}
	return tw.file.Sync()
}

// Close flushes pending entries and closes the file.
func (tw *TraceWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	flushErr := tw.buf.Flush()
	closeErr := tw.file.Close()
	if flushErr != nil {
		return fmt.Errorf("failed to flush trace: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close trace file: %w", closeErr)
	}
	return nil
}

// LoadTrace returns the entries of the run's trace in the order they were
// written. A missing trace yields *NotFoundError.
func (fs *FSStore) LoadTrace(runID string) ([]TraceEntry, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}

	file, err := os.Open(fs.tracePath(runID))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{RunID: runID}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer file.Close()

	var entries []TraceEntry
	dec := json.NewDecoder(bufio.NewReader(file))
	for {
		var entry TraceEntry
		err := dec.Decode(&entry)
		if errors.Is(err, io.EOF) {
			return entries, nil
		}
		if err != nil {
			return nil, fmt.Errorf("trace entry %d: %w", len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
}
