package roundtrip

import (
	"fmt"
	"time"
)

// Stage names one step of the round trip.
type Stage string

const (
	StageConfig   Stage = "config"
	StageInit     Stage = "init"
	StageInfo     Stage = "info"
	StageLoad     Stage = "load"
	StageBuild    Stage = "build"
	StageKernel   Stage = "kernel"
	StageBuffers  Stage = "buffers"
	StageWrite    Stage = "write"
	StageLaunch   Stage = "launch"
	StageRead     Stage = "read"
	StageVerify   Stage = "verify"
	StageCPUCopy  Stage = "cpu_copy"
	StageTeardown Stage = "teardown"
)

// StageError is a fatal failure of a setup stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageEvent is emitted after every stage completes or fails.
type StageEvent struct {
	Stage   Stage
	Elapsed time.Duration
	// Fatal is set when Err aborted the run.
	Fatal bool
	Err   error
	// Report is the run's report as of this stage. It is shared, not a copy.
	Report *Report
}

// Observer receives stage events in order. It runs on the caller's goroutine.
type Observer func(StageEvent)

// Millis rounds d to whole milliseconds, halves rounding up.
func Millis(d time.Duration) int64 {
	return int64((d + time.Millisecond/2) / time.Millisecond)
}
