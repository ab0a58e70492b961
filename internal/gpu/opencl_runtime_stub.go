//go:build !gpu

package gpu

import "fmt"

// openCLBackend is a placeholder when OpenCL support is not compiled.
type openCLBackend struct{}

func newOpenCLBackend() Backend {
	return openCLBackend{}
}

func (openCLBackend) Name() string {
	return string(BackendOpenCL)
}

// Open always fails. The error matches both ErrBackendUnavailable and
// ErrNotBuilt.
func (openCLBackend) Open() (Context, error) {
	return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, ErrNotBuilt)
}
