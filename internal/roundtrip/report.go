package roundtrip

import (
	"time"

	"github.com/cwbudde/hellocl/internal/gpu"
)

// Report is the outcome of one round trip. Fields for stages that never ran
// keep their zero value.
type Report struct {
	Backend  string           `json:"backend"`
	Config   Config           `json:"config"`
	Platform gpu.PlatformInfo `json:"platform"`
	Device   gpu.DeviceInfo   `json:"device"`

	BuildTime  time.Duration `json:"buildTime"`
	KernelTime time.Duration `json:"kernelTime"`
	// GPUTime covers the kernel enqueue and the flush only. Transfers are
	// excluded.
	GPUTime time.Duration `json:"gpuTime"`
	CPUTime time.Duration `json:"cpuTime"`

	// Diverged is set when the output differs from the input anywhere.
	Diverged     bool   `json:"diverged"`
	InputDigest  string `json:"inputDigest,omitempty"`
	OutputDigest string `json:"outputDigest,omitempty"`

	// SoftErrors lists failures the run continued past.
	SoftErrors []string `json:"softErrors,omitempty"`
}

// Succeeded reports whether the round trip ran without soft errors and the
// output matched.
func (r *Report) Succeeded() bool {
	return !r.Diverged && len(r.SoftErrors) == 0
}
