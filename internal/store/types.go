package store

import (
	"time"
)

// Record status values reported by Record.Status.
const (
	StatusOK         = "ok"
	StatusDiverged   = "diverged"
	StatusSoftErrors = "soft-errors"
	StatusFailed     = "failed"
)

// RunConfig is the persisted copy of a round trip's parameters.
// This keeps the store free of a dependency on the runner.
type RunConfig struct {
	KernelPath   string `json:"kernelPath"`
	KernelName   string `json:"kernelName"`
	BuildOptions string `json:"buildOptions,omitempty"`
	Backend      string `json:"backend"`
	GlobalSize   int    `json:"globalSize"`
	LocalSize    int    `json:"localSize"`
	Seed         int64  `json:"seed"`
}

// Record is the saved outcome of one round trip.
//
// Durations are stored as whole milliseconds, matching what the CLI prints.
// A run that aborted during setup carries the failing stage and error text;
// timings for stages it never reached are zero.
type Record struct {
	// RunID is the unique identifier for this run
	RunID string `json:"runId"`

	// Timestamp records when the run finished
	Timestamp time.Time `json:"timestamp"`

	Config RunConfig `json:"config"`

	// Platform and Device are the human-readable names of the selected hardware
	Platform string `json:"platform,omitempty"`
	Device   string `json:"device,omitempty"`

	BuildMs  int64 `json:"buildMs"`
	KernelMs int64 `json:"kernelMs"`
	GPUMs    int64 `json:"gpuMs"`
	CPUMs    int64 `json:"cpuMs"`

	Diverged     bool   `json:"diverged"`
	InputDigest  string `json:"inputDigest,omitempty"`
	OutputDigest string `json:"outputDigest,omitempty"`

	// SoftErrors lists failures the run continued past
	SoftErrors []string `json:"softErrors,omitempty"`

	// FailedStage and Error describe a fatal setup failure
	FailedStage string `json:"failedStage,omitempty"`
	Error       string `json:"error,omitempty"`

	// BuildLog is the compiler output of a failed build
	BuildLog string `json:"buildLog,omitempty"`
}

// RecordInfo contains the listing view of a record.
type RecordInfo struct {
	RunID     string    `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
	Backend   string    `json:"backend"`
	Device    string    `json:"device"`
	Status    string    `json:"status"`
	GPUMs     int64     `json:"gpuMs"`
	CPUMs     int64     `json:"cpuMs"`
}

// NewRecord creates a record stamped with the current time.
func NewRecord(runID string, config RunConfig) *Record {
	return &Record{
		RunID:     runID,
		Timestamp: time.Now(),
		Config:    config,
	}
}

// Status summarizes the outcome. A fatal failure outranks divergence, which
// outranks soft errors.
func (r *Record) Status() string {
	switch {
	case r.Error != "":
		return StatusFailed
	case r.Diverged:
		return StatusDiverged
	case len(r.SoftErrors) > 0:
		return StatusSoftErrors
	default:
		return StatusOK
	}
}

// ToInfo converts a full Record to RecordInfo.
func (r *Record) ToInfo() RecordInfo {
	return RecordInfo{
		RunID:     r.RunID,
		Timestamp: r.Timestamp,
		Backend:   r.Config.Backend,
		Device:    r.Device,
		Status:    r.Status(),
		GPUMs:     r.GPUMs,
		CPUMs:     r.CPUMs,
	}
}

// Validate checks if the record has valid data.
func (r *Record) Validate() error {
	if r.RunID == "" {
		return &ValidationError{Field: "RunID", Reason: "cannot be empty"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.KernelName == "" {
		return &ValidationError{Field: "Config.KernelName", Reason: "cannot be empty"}
	}
	if r.Config.Backend == "" {
		return &ValidationError{Field: "Config.Backend", Reason: "cannot be empty"}
	}
	if r.Config.GlobalSize <= 0 {
		return &ValidationError{Field: "Config.GlobalSize", Reason: "must be positive"}
	}
	if r.Config.LocalSize <= 0 {
		return &ValidationError{Field: "Config.LocalSize", Reason: "must be positive"}
	}
	for field, v := range map[string]int64{"BuildMs": r.BuildMs, "KernelMs": r.KernelMs, "GPUMs": r.GPUMs, "CPUMs": r.CPUMs} {
		if v < 0 {
			return &ValidationError{Field: field, Reason: "cannot be negative"}
		}
	}
	if r.FailedStage != "" && r.Error == "" {
		return &ValidationError{Field: "Error", Reason: "required when FailedStage is set"}
	}
	return nil
}

// ValidationError represents a record validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
