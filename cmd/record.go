package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/hellocl/internal/gpu"
	"github.com/cwbudde/hellocl/internal/roundtrip"
	"github.com/cwbudde/hellocl/internal/store"
)

// reportRecorder persists one run: a stage trace while it executes and the
// final record afterwards.
type reportRecorder struct {
	store  *store.FSStore
	runID  string
	tracer *store.TraceWriter
}

func newReportRecorder(dir, runID string) (*reportRecorder, error) {
	runStore, err := store.NewFSStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to create report store: %w", err)
	}
	tracer, err := runStore.OpenTrace(runID)
	if err != nil {
		return nil, fmt.Errorf("failed to create stage trace: %w", err)
	}
	return &reportRecorder{store: runStore, runID: runID, tracer: tracer}, nil
}

func (r *reportRecorder) trace(ev roundtrip.StageEvent) {
	entry := store.TraceEntry{
		Stage:     string(ev.Stage),
		ElapsedMs: float64(ev.Elapsed) / float64(time.Millisecond),
		Fatal:     ev.Fatal,
		Timestamp: time.Now(),
	}
	if ev.Err != nil {
		entry.Error = ev.Err.Error()
	}
	if err := r.tracer.Write(entry); err != nil {
		slog.Warn("Failed to write stage trace", "runID", r.runID, "stage", ev.Stage, "error", err)
	}
}

// save closes the trace and writes the record. It returns the run directory.
func (r *reportRecorder) save(report *roundtrip.Report, runErr error) (string, error) {
	if err := r.tracer.Close(); err != nil {
		slog.Warn("Failed to close stage trace", "runID", r.runID, "error", err)
	}
	if err := r.store.SaveRecord(r.runID, newRunRecord(r.runID, report, runErr)); err != nil {
		return "", err
	}
	return r.store.RunDir(r.runID), nil
}

func newRunRecord(runID string, report *roundtrip.Report, runErr error) *store.Record {
	record := store.NewRecord(runID, store.RunConfig{
		KernelPath:   report.Config.KernelPath,
		KernelName:   report.Config.KernelName,
		BuildOptions: report.Config.BuildOptions,
		Backend:      report.Backend,
		GlobalSize:   report.Config.GlobalSize,
		LocalSize:    report.Config.LocalSize,
		Seed:         report.Config.Seed,
	})
	record.Platform = report.Platform.Name
	record.Device = report.Device.Name
	record.BuildMs = roundtrip.Millis(report.BuildTime)
	record.KernelMs = roundtrip.Millis(report.KernelTime)
	record.GPUMs = roundtrip.Millis(report.GPUTime)
	record.CPUMs = roundtrip.Millis(report.CPUTime)
	record.Diverged = report.Diverged
	record.InputDigest = report.InputDigest
	record.OutputDigest = report.OutputDigest
	record.SoftErrors = report.SoftErrors

	if runErr != nil {
		record.Error = runErr.Error()
		var stageErr *roundtrip.StageError
		if errors.As(runErr, &stageErr) {
			record.FailedStage = string(stageErr.Stage)
		}
		var buildErr *gpu.BuildError
		if errors.As(runErr, &buildErr) {
			record.BuildLog = buildErr.Log
		}
	}
	return record
}
