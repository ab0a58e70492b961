package gpu

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
)

// MockFaults injects failures into a MockBackend.
type MockFaults struct {
	NoPlatform    bool
	NoGPU         bool
	CreateContext error
	// CreateQueue fails after the context exists, which must then be released.
	CreateQueue error
	// Info makes device queries fail. The context stays usable.
	Info          error
	NewBuffer     error
	WriteBuffer   error
	EnqueueKernel error
	ReadBuffer    error
	// Corrupt flips the first byte of the destination buffer after every launch.
	Corrupt bool
}

// MockBackend is a CPU-backed backend for machines without OpenCL and for
// tests. Every kernel behaves as an identity copy from argument 0 to
// argument 1, one byte per work item.
type MockBackend struct {
	Platform PlatformInfo
	Device   DeviceInfo
	Faults   MockFaults

	live atomic.Int64
}

// NewMockBackend returns a mock backend with a single fake GPU device.
func NewMockBackend() *MockBackend {
	return &MockBackend{
		Platform: PlatformInfo{
			Name:    "Mock Platform",
			Profile: "FULL_PROFILE",
			Version: "OpenCL 1.2 mock",
			Vendor:  "hellocl",
		},
		Device: DeviceInfo{
			Name:                  "Mock GPU",
			Profile:               "FULL_PROFILE",
			Version:               "OpenCL 1.2 mock",
			Vendor:                "hellocl",
			Type:                  DeviceTypeGPU,
			MaxWorkItemDimensions: 3,
			MaxWorkGroupSize:      1024,
		},
	}
}

func (b *MockBackend) Name() string {
	return string(BackendMock)
}

// Live reports how many handles are currently unreleased. The context and
// its queue count as two.
func (b *MockBackend) Live() int {
	return int(b.live.Load())
}

func (b *MockBackend) Open() (Context, error) {
	if b.Faults.NoPlatform {
		return nil, ErrNoPlatform
	}
	if b.Faults.NoGPU {
		return nil, ErrNoGPUDevice
	}
	if b.Faults.CreateContext != nil {
		return nil, fmt.Errorf("clCreateContext: %w", b.Faults.CreateContext)
	}
	b.live.Add(1)
	if b.Faults.CreateQueue != nil {
		b.live.Add(-1)
		return nil, fmt.Errorf("clCreateCommandQueue: %w", b.Faults.CreateQueue)
	}
	b.live.Add(1)
	return &mockContext{backend: b}, nil
}

type mockContext struct {
	backend *MockBackend
	pending []func() error
	closed  bool
}

func (c *mockContext) Info() (PlatformInfo, DeviceInfo, error) {
	if c.backend.Faults.Info != nil {
		return PlatformInfo{}, DeviceInfo{}, fmt.Errorf("clGetPlatformInfo: %w", c.backend.Faults.Info)
	}
	return c.backend.Platform, c.backend.Device, nil
}

func (c *mockContext) BuildProgram(source []byte, options string) (Program, error) {
	if c.closed {
		return nil, ErrReleased
	}
	if len(source) == 0 {
		return nil, errors.New("clCreateProgramWithSource: CL_INVALID_VALUE (-30)")
	}
	kernels, diagnostics := compileMock(string(source))
	if len(diagnostics) > 0 {
		return nil, &BuildError{
			Status: "CL_BUILD_PROGRAM_FAILURE",
			Log:    strings.Join(diagnostics, "\n") + fmt.Sprintf("\n%d error(s) generated.\n", len(diagnostics)),
		}
	}
	c.backend.live.Add(1)
	return &mockProgram{backend: c.backend, kernels: kernels}, nil
}

func (c *mockContext) NewBuffer(access MemAccess, size int) (Buffer, error) {
	if c.closed {
		return nil, ErrReleased
	}
	if c.backend.Faults.NewBuffer != nil {
		return nil, fmt.Errorf("clCreateBuffer(%s): %w", access, c.backend.Faults.NewBuffer)
	}
	if size <= 0 {
		return nil, fmt.Errorf("clCreateBuffer(%s): CL_INVALID_BUFFER_SIZE (-61)", access)
	}
	c.backend.live.Add(1)
	return &mockBuffer{backend: c.backend, access: access, data: make([]byte, size)}, nil
}

func (c *mockContext) WriteBuffer(buf Buffer, src []byte) error {
	if err := c.drain(); err != nil {
		return err
	}
	if c.backend.Faults.WriteBuffer != nil {
		return fmt.Errorf("clEnqueueWriteBuffer: %w", c.backend.Faults.WriteBuffer)
	}
	b, err := asMockBuffer(buf)
	if err != nil {
		return err
	}
	if len(src) > len(b.data) {
		return errors.New("clEnqueueWriteBuffer: CL_INVALID_VALUE (-30)")
	}
	copy(b.data, src)
	return nil
}

func (c *mockContext) EnqueueKernel(k Kernel, global, local int) error {
	if c.backend.Faults.EnqueueKernel != nil {
		return fmt.Errorf("clEnqueueNDRangeKernel: %w", c.backend.Faults.EnqueueKernel)
	}
	kernel, ok := k.(*mockKernel)
	if !ok {
		return ErrForeignHandle
	}
	if kernel.released {
		return ErrReleased
	}
	if local <= 0 || local > c.backend.Device.MaxWorkGroupSize || global%local != 0 {
		return errors.New("clEnqueueNDRangeKernel: CL_INVALID_WORK_GROUP_SIZE (-54)")
	}
	src, dst := kernel.args[0], kernel.args[1]
	if src == nil || dst == nil {
		return errors.New("clEnqueueNDRangeKernel: CL_INVALID_KERNEL_ARGS (-52)")
	}
	if global > len(src.data) || global > len(dst.data) {
		return errors.New("clEnqueueNDRangeKernel: CL_INVALID_GLOBAL_WORK_SIZE (-63)")
	}

	corrupt := c.backend.Faults.Corrupt
	c.pending = append(c.pending, func() error {
		if src.released || dst.released {
			return errors.New("kernel execution: CL_INVALID_MEM_OBJECT (-38)")
		}
		copy(dst.data[:global], src.data[:global])
		if corrupt && global > 0 {
			dst.data[0] ^= 0xff
		}
		return nil
	})
	return nil
}

func (c *mockContext) Flush() error {
	return c.drain()
}

func (c *mockContext) Finish() error {
	return c.drain()
}

func (c *mockContext) ReadBuffer(buf Buffer, dst []byte) error {
	if err := c.drain(); err != nil {
		return err
	}
	if c.backend.Faults.ReadBuffer != nil {
		return fmt.Errorf("clEnqueueReadBuffer: %w", c.backend.Faults.ReadBuffer)
	}
	b, err := asMockBuffer(buf)
	if err != nil {
		return err
	}
	if len(dst) > len(b.data) {
		return errors.New("clEnqueueReadBuffer: CL_INVALID_VALUE (-30)")
	}
	copy(dst, b.data)
	return nil
}

func (c *mockContext) Close() error {
	if c.closed {
		return ErrReleased
	}
	c.pending = nil
	c.closed = true
	c.backend.live.Add(-2)
	return nil
}

// drain runs queued commands in submission order.
func (c *mockContext) drain() error {
	if c.closed {
		return ErrReleased
	}
	queued := c.pending
	c.pending = nil
	for _, cmd := range queued {
		if err := cmd(); err != nil {
			return err
		}
	}
	return nil
}

type mockProgram struct {
	backend  *MockBackend
	kernels  map[string]bool
	released bool
}

func (p *mockProgram) CreateKernel(name string) (Kernel, error) {
	if p.released {
		return nil, ErrReleased
	}
	if !p.kernels[name] {
		return nil, fmt.Errorf("clCreateKernel(%s): CL_INVALID_KERNEL_NAME (-46)", name)
	}
	p.backend.live.Add(1)
	return &mockKernel{backend: p.backend, name: name}, nil
}

func (p *mockProgram) Release() error {
	if p.released {
		return ErrReleased
	}
	p.released = true
	p.backend.live.Add(-1)
	return nil
}

type mockKernel struct {
	backend  *MockBackend
	name     string
	args     [2]*mockBuffer
	released bool
}

func (k *mockKernel) Name() string {
	return k.name
}

func (k *mockKernel) SetBufferArg(index int, buf Buffer) error {
	if k.released {
		return ErrReleased
	}
	if index < 0 || index >= len(k.args) {
		return fmt.Errorf("clSetKernelArg(%d): CL_INVALID_ARG_INDEX (-49)", index)
	}
	b, err := asMockBuffer(buf)
	if err != nil {
		return err
	}
	k.args[index] = b
	return nil
}

func (k *mockKernel) Release() error {
	if k.released {
		return ErrReleased
	}
	k.released = true
	k.args = [2]*mockBuffer{}
	k.backend.live.Add(-1)
	return nil
}

type mockBuffer struct {
	backend  *MockBackend
	access   MemAccess
	data     []byte
	released bool
}

func (b *mockBuffer) Size() int         { return len(b.data) }
func (b *mockBuffer) Access() MemAccess { return b.access }

func (b *mockBuffer) Release() error {
	if b.released {
		return ErrReleased
	}
	b.released = true
	b.backend.live.Add(-1)
	return nil
}

func asMockBuffer(buf Buffer) (*mockBuffer, error) {
	b, ok := buf.(*mockBuffer)
	if !ok {
		return nil, ErrForeignHandle
	}
	if b.released {
		return nil, ErrReleased
	}
	return b, nil
}

// skipLiteral returns the index of the quote closing the literal opened at
// src[start], or -1 when the line ends first.
func skipLiteral(src string, start int) int {
	quote := src[start]
	for i := start + 1; i < len(src); i++ {
		switch src[i] {
		case '\\':
			if i+1 < len(src) && src[i+1] != '\n' {
				i++
			}
		case '\n':
			return -1
		case quote:
			return i
		}
	}
	return -1
}

var kernelDecl = regexp.MustCompile(`(?:__kernel|\bkernel)\s+void\s+([A-Za-z_]\w*)\s*\(`)

// compileMock collects kernel entry points and checks bracket balance,
// reporting diagnostics in the usual "file:line:col: error: msg" form.
func compileMock(src string) (map[string]bool, []string) {
	type open struct {
		ch        byte
		line, col int
	}
	closers := map[byte]byte{')': '(', ']': '[', '}': '{'}

	var stack []open
	var diagnostics []string
	line, col := 1, 0
	for i := 0; i < len(src); i++ {
		ch := src[i]
		col++
		switch {
		case ch == '\n':
			line++
			col = 0
		case ch == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			i--
		case ch == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				diagnostics = append(diagnostics, fmt.Sprintf("<program source>:%d:%d: error: unterminated /* comment", line, col))
				i = len(src)
				break
			}
			comment := src[i : i+2+end+2]
			if n := strings.Count(comment, "\n"); n > 0 {
				line += n
				col = len(comment) - strings.LastIndex(comment, "\n") - 1
			} else {
				col += len(comment) - 1
			}
			i += len(comment) - 1
		case ch == '\'' || ch == '"':
			end := skipLiteral(src, i)
			if end < 0 {
				diagnostics = append(diagnostics, fmt.Sprintf("<program source>:%d:%d: error: missing terminating %c character", line, col, ch))
				for i < len(src) && src[i] != '\n' {
					i++
				}
				i--
				break
			}
			col += end - i
			i = end
		case ch == '(' || ch == '[' || ch == '{':
			stack = append(stack, open{ch: ch, line: line, col: col})
		case ch == ')' || ch == ']' || ch == '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != closers[ch] {
				diagnostics = append(diagnostics, fmt.Sprintf("<program source>:%d:%d: error: extraneous closing '%c'", line, col, ch))
				continue
			}
			stack = stack[:len(stack)-1]
		}
	}
	for _, o := range stack {
		diagnostics = append(diagnostics, fmt.Sprintf("<program source>:%d:%d: error: expected matching bracket for '%c'", o.line, o.col, o.ch))
	}
	if len(diagnostics) > 0 {
		return nil, diagnostics
	}

	kernels := make(map[string]bool)
	for _, m := range kernelDecl.FindAllStringSubmatch(src, -1) {
		kernels[m[1]] = true
	}
	return kernels, nil
}
