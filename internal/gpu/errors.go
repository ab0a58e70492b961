package gpu

import (
	"errors"
	"fmt"
)

var (
	// ErrNotBuilt indicates the binary was built without OpenCL support.
	ErrNotBuilt = errors.New("opencl support requires building with '-tags gpu'")

	// ErrNoPlatform is returned when no OpenCL platform is installed.
	ErrNoPlatform = errors.New("no OpenCL platform found")

	// ErrNoGPUDevice is returned when the first platform exposes no GPU device.
	// There is no fallback to other device classes.
	ErrNoGPUDevice = errors.New("no OpenCL GPU device found")

	// ErrUnknownBackend is returned when the name does not match a known backend.
	ErrUnknownBackend = errors.New("unknown compute backend")

	// ErrBackendUnavailable indicates the backend cannot be used on this system.
	ErrBackendUnavailable = errors.New("compute backend unavailable")

	// ErrForeignHandle is returned when a handle created by one backend is
	// passed to another.
	ErrForeignHandle = errors.New("handle does not belong to this context")

	// ErrReleased is returned when a handle is used or released twice.
	ErrReleased = errors.New("handle already released")
)

// BuildError reports a failed program build together with the compiler log.
type BuildError struct {
	// Status is the symbolic status returned by the build call.
	Status string
	// Log is the build log for the selected device.
	Log string
}

func (e *BuildError) Error() string {
	if e.Log == "" {
		return fmt.Sprintf("program build failed: %s", e.Status)
	}
	return fmt.Sprintf("program build failed: %s\n%s", e.Status, e.Log)
}
