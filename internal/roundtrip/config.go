package roundtrip

import (
	"errors"
	"fmt"
)

const (
	DefaultKernelPath = "kernels/hello_world.cl"
	DefaultKernelName = "hello_world"
	// DefaultGlobalSize is one byte per work item over a 3840x2160 RGBA frame.
	DefaultGlobalSize = 3840 * 2160 * 4
	DefaultLocalSize  = 1024
	DefaultSeed       = 1
)

// Config holds the fixed parameters of one round trip.
type Config struct {
	KernelPath   string `json:"kernelPath"`
	KernelName   string `json:"kernelName"`
	BuildOptions string `json:"buildOptions"`
	// GlobalSize is both the work-item count and the workload size in bytes.
	GlobalSize int   `json:"globalSize"`
	LocalSize  int   `json:"localSize"`
	Seed       int64 `json:"seed"`
}

// DefaultConfig returns the workload of the hello_world demo.
func DefaultConfig() Config {
	return Config{
		KernelPath: DefaultKernelPath,
		KernelName: DefaultKernelName,
		GlobalSize: DefaultGlobalSize,
		LocalSize:  DefaultLocalSize,
		Seed:       DefaultSeed,
	}
}

// WorkloadBytes returns the size of every host and device buffer.
func (c Config) WorkloadBytes() int {
	return c.GlobalSize
}

// Validate rejects configurations no device could launch.
func (c Config) Validate() error {
	if c.KernelPath == "" {
		return errors.New("kernel path cannot be empty")
	}
	if c.KernelName == "" {
		return errors.New("kernel name cannot be empty")
	}
	if c.GlobalSize <= 0 {
		return fmt.Errorf("global size must be positive, got %d", c.GlobalSize)
	}
	if c.LocalSize <= 0 {
		return fmt.Errorf("local size must be positive, got %d", c.LocalSize)
	}
	if c.GlobalSize%c.LocalSize != 0 {
		return fmt.Errorf("global size %d is not a multiple of local size %d", c.GlobalSize, c.LocalSize)
	}
	return nil
}
