package store

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestOpenTrace_WriteAndLoad(t *testing.T) {
	store, tmpDir := setupTestStore(t)
	runID := "run-trace"

	writer, err := store.OpenTrace(runID)
	if err != nil {
		t.Fatalf("Failed to open trace: %v", err)
	}

	entries := []TraceEntry{
		{Stage: "init", ElapsedMs: 12.5, Timestamp: time.Now()},
		{Stage: "build", ElapsedMs: 80, Timestamp: time.Now()},
		{Stage: "read", ElapsedMs: 1, Error: "CL_OUT_OF_RESOURCES (-5)", Timestamp: time.Now()},
		{Stage: "teardown", ElapsedMs: 0.2, Timestamp: time.Now()},
	}
	for _, entry := range entries {
		if err := writer.Write(entry); err != nil {
			t.Fatalf("Failed to write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	tracePath := filepath.Join(tmpDir, "runs", runID, "trace.jsonl")
	if _, err := os.Stat(tracePath); os.IsNotExist(err) {
		t.Fatalf("Trace file not created: %s", tracePath)
	}

	loaded, err := store.LoadTrace(runID)
	if err != nil {
		t.Fatalf("LoadTrace failed: %v", err)
	}
	if len(loaded) != len(entries) {
		t.Fatalf("Expected %d entries, got %d", len(entries), len(loaded))
	}
	for i, entry := range loaded {
		if entry.Stage != entries[i].Stage {
			t.Errorf("Entry %d: stage = %s, want %s", i, entry.Stage, entries[i].Stage)
		}
		if entry.ElapsedMs != entries[i].ElapsedMs {
			t.Errorf("Entry %d: elapsed = %f, want %f", i, entry.ElapsedMs, entries[i].ElapsedMs)
		}
		if entry.Error != entries[i].Error {
			t.Errorf("Entry %d: error = %q, want %q", i, entry.Error, entries[i].Error)
		}
	}
}

func TestOpenTrace_ReplacesPrevious(t *testing.T) {
	store, _ := setupTestStore(t)
	runID := "run-reopen"

	for _, stage := range []string{"init", "info"} {
		writer, err := store.OpenTrace(runID)
		if err != nil {
			t.Fatal(err)
		}
		writer.Write(TraceEntry{Stage: stage, Timestamp: time.Now()})
		writer.Close()
	}

	entries, err := store.LoadTrace(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Stage != "info" {
		t.Errorf("Expected only the second trace, got %+v", entries)
	}
}

func TestOpenTrace_EmptyRunID(t *testing.T) {
	store, _ := setupTestStore(t)
	if _, err := store.OpenTrace(""); err == nil {
		t.Error("Expected error for empty runID")
	}
}

func TestTraceWriter_FatalEntryReachesDisk(t *testing.T) {
	store, _ := setupTestStore(t)
	runID := "run-fatal"

	writer, err := store.OpenTrace(runID)
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	writer.Write(TraceEntry{Stage: "init", Timestamp: time.Now()})
	buildLog := "program build failed\n<program source>:2:1: error: expected matching bracket for '{'"
	if err := writer.Write(TraceEntry{Stage: "build", Error: buildLog, Fatal: true, Timestamp: time.Now()}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Read while the writer is still open.
	entries, err := store.LoadTrace(runID)
	if err != nil {
		t.Fatalf("LoadTrace failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries on disk, got %d", len(entries))
	}
	if !entries[1].Fatal || entries[1].Error != buildLog {
		t.Errorf("Fatal entry not preserved: %+v", entries[1])
	}

	raw, err := os.ReadFile(store.tracePath(runID))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "<program source>") {
		t.Errorf("Build log should be stored unescaped: %s", raw)
	}
}

func TestLoadTrace_NotFound(t *testing.T) {
	store, _ := setupTestStore(t)
	_, err := store.LoadTrace("missing")
	if !isNotFoundError(err) {
		t.Errorf("Expected NotFoundError, got %T: %v", err, err)
	}
}

func TestLoadTrace_Corrupted(t *testing.T) {
	store, _ := setupTestStore(t)
	runID := "run-corrupt"

	writer, err := store.OpenTrace(runID)
	if err != nil {
		t.Fatal(err)
	}
	writer.Write(TraceEntry{Stage: "init", Timestamp: time.Now()})
	writer.Close()

	f, err := os.OpenFile(store.tracePath(runID), os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatal(err)
	}
	f.WriteString("{\"stage\": \"inf")
	f.Close()

	if _, err := store.LoadTrace(runID); err == nil || !strings.Contains(err.Error(), "trace entry 2") {
		t.Errorf("Expected error naming entry 2, got %v", err)
	}
}

func TestTraceWriter_ConcurrentWrites(t *testing.T) {
	store, _ := setupTestStore(t)
	runID := "run-concurrent"

	writer, err := store.OpenTrace(runID)
	if err != nil {
		t.Fatalf("Failed to open trace: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry := TraceEntry{Stage: "launch", ElapsedMs: float64(i), Timestamp: time.Now()}
			if err := writer.Write(entry); err != nil {
				t.Errorf("Concurrent write failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}

	entries, err := store.LoadTrace(runID)
	if err != nil {
		t.Fatalf("LoadTrace failed: %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("Expected 10 entries, got %d", len(entries))
	}
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*NotFoundError)
	return ok
}
