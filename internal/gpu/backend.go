package gpu

import (
	"fmt"
	"strings"
)

// Backend opens the execution environment for one run.
type Backend interface {
	Name() string
	// Open selects the first platform and its first GPU device and creates a
	// context with one in-order command queue on it.
	Open() (Context, error)
}

// Context owns the platform, device, context and queue handles of one run.
// Close releases the queue and then the context.
type Context interface {
	// Info reads the platform and device description.
	Info() (PlatformInfo, DeviceInfo, error)
	// BuildProgram compiles source for the selected device. A compiler
	// failure is reported as *BuildError.
	BuildProgram(source []byte, options string) (Program, error)
	NewBuffer(access MemAccess, size int) (Buffer, error)
	// WriteBuffer blocks until src has been copied into buf.
	WriteBuffer(buf Buffer, src []byte) error
	// EnqueueKernel enqueues a one-dimensional launch. It does not wait.
	EnqueueKernel(k Kernel, global, local int) error
	Flush() error
	Finish() error
	// ReadBuffer blocks until buf has been copied into dst.
	ReadBuffer(buf Buffer, dst []byte) error
	Close() error
}

// Program is a built program object.
type Program interface {
	CreateKernel(name string) (Kernel, error)
	Release() error
}

// Kernel is an entry point of a built program.
type Kernel interface {
	Name() string
	SetBufferArg(index int, buf Buffer) error
	Release() error
}

// Buffer is a device memory region.
type Buffer interface {
	Size() int
	Access() MemAccess
	Release() error
}

// BackendKind identifies a Backend implementation.
type BackendKind string

const (
	BackendOpenCL BackendKind = "opencl"
	BackendMock   BackendKind = "mock"
)

// NormalizeBackend maps arbitrary user input to a canonical backend identifier.
func NormalizeBackend(name string) BackendKind {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "opencl", "cl", "gpu":
		return BackendOpenCL
	case "mock", "cpu":
		return BackendMock
	default:
		return BackendKind(name)
	}
}

// SupportedBackends returns the list of backends understood by NewBackend.
func SupportedBackends() []BackendKind {
	return []BackendKind{BackendOpenCL, BackendMock}
}

// NewBackend constructs the requested backend.
func NewBackend(name string) (Backend, error) {
	switch NormalizeBackend(name) {
	case BackendOpenCL:
		return newOpenCLBackend(), nil
	case BackendMock:
		return NewMockBackend(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
}
