package gpu

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identitySource = `
__kernel void hello_world(__global const uchar *input, __global uchar *output)
{
	size_t id = get_global_id(0);
	output[id] = input[id];
}
`

func TestMockBackendIdentityKernel(t *testing.T) {
	backend := NewMockBackend()
	ctx, err := backend.Open()
	require.NoError(t, err)

	program, err := ctx.BuildProgram([]byte(identitySource), "")
	require.NoError(t, err)
	kernel, err := program.CreateKernel("hello_world")
	require.NoError(t, err)

	in, err := ctx.NewBuffer(MemReadOnly, 64)
	require.NoError(t, err)
	out, err := ctx.NewBuffer(MemWriteOnly, 64)
	require.NoError(t, err)
	require.NoError(t, kernel.SetBufferArg(0, in))
	require.NoError(t, kernel.SetBufferArg(1, out))

	src := make([]byte, 64)
	for i := range src {
		src[i] = byte(i * 3)
	}
	require.NoError(t, ctx.WriteBuffer(in, src))
	require.NoError(t, ctx.EnqueueKernel(kernel, 64, 16))
	require.NoError(t, ctx.Flush())

	dst := make([]byte, 64)
	require.NoError(t, ctx.ReadBuffer(out, dst))
	assert.Equal(t, src, dst)

	assert.Equal(t, 6, backend.Live())
	require.NoError(t, out.Release())
	require.NoError(t, in.Release())
	require.NoError(t, kernel.Release())
	require.NoError(t, program.Release())
	require.NoError(t, ctx.Close())
	assert.Equal(t, 0, backend.Live())
}

func TestMockBackendLaunchRunsOnFlush(t *testing.T) {
	backend := NewMockBackend()
	ctx, err := backend.Open()
	require.NoError(t, err)
	defer ctx.Close()

	program, err := ctx.BuildProgram([]byte(identitySource), "")
	require.NoError(t, err)
	kernel, err := program.CreateKernel("hello_world")
	require.NoError(t, err)
	in, _ := ctx.NewBuffer(MemReadOnly, 8)
	out, _ := ctx.NewBuffer(MemWriteOnly, 8)
	require.NoError(t, kernel.SetBufferArg(0, in))
	require.NoError(t, kernel.SetBufferArg(1, out))
	require.NoError(t, ctx.WriteBuffer(in, []byte{1, 2, 3, 4, 5, 6, 7, 8}))
	require.NoError(t, ctx.EnqueueKernel(kernel, 8, 4))

	assert.Equal(t, make([]byte, 8), out.(*mockBuffer).data, "launch must not run before the queue is flushed")
	require.NoError(t, ctx.Finish())
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, out.(*mockBuffer).data)
}

func TestMockBackendNoGPU(t *testing.T) {
	backend := NewMockBackend()
	backend.Faults.NoGPU = true

	ctx, err := backend.Open()
	assert.Nil(t, ctx)
	assert.True(t, errors.Is(err, ErrNoGPUDevice))
	assert.Equal(t, 0, backend.Live())
}

func TestMockBackendNoPlatform(t *testing.T) {
	backend := NewMockBackend()
	backend.Faults.NoPlatform = true

	_, err := backend.Open()
	assert.ErrorIs(t, err, ErrNoPlatform)
}

func TestMockBackendBuildErrorCarriesLog(t *testing.T) {
	ctx, err := NewMockBackend().Open()
	require.NoError(t, err)
	defer ctx.Close()

	broken := "__kernel void hello_world(__global const uchar *input, __global uchar *output)\n{\n\toutput[0] = input[0];\n"
	_, err = ctx.BuildProgram([]byte(broken), "")
	require.Error(t, err)

	var buildErr *BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Equal(t, "CL_BUILD_PROGRAM_FAILURE", buildErr.Status)
	assert.Contains(t, buildErr.Log, "<program source>:2:1: error: expected matching bracket for '{'")
	assert.Contains(t, buildErr.Log, "1 error(s) generated.")
}

func TestMockBackendUnknownKernelName(t *testing.T) {
	ctx, err := NewMockBackend().Open()
	require.NoError(t, err)
	defer ctx.Close()

	program, err := ctx.BuildProgram([]byte(identitySource), "")
	require.NoError(t, err)
	defer program.Release()

	_, err = program.CreateKernel("goodbye_world")
	assert.ErrorContains(t, err, "CL_INVALID_KERNEL_NAME")
}

func TestMockBackendRejectsBadWorkGroup(t *testing.T) {
	ctx, err := NewMockBackend().Open()
	require.NoError(t, err)
	defer ctx.Close()

	program, _ := ctx.BuildProgram([]byte(identitySource), "")
	kernel, _ := program.CreateKernel("hello_world")
	in, _ := ctx.NewBuffer(MemReadOnly, 100)
	out, _ := ctx.NewBuffer(MemWriteOnly, 100)
	require.NoError(t, kernel.SetBufferArg(0, in))
	require.NoError(t, kernel.SetBufferArg(1, out))

	tests := []struct {
		name          string
		global, local int
	}{
		{"not a multiple", 100, 16},
		{"local too large", 100, 2048},
		{"zero local", 100, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ctx.EnqueueKernel(kernel, tt.global, tt.local)
			assert.ErrorContains(t, err, "CL_INVALID_WORK_GROUP_SIZE")
		})
	}
}

func TestMockBackendDoubleRelease(t *testing.T) {
	backend := NewMockBackend()
	ctx, err := backend.Open()
	require.NoError(t, err)

	buf, err := ctx.NewBuffer(MemReadWrite, 4)
	require.NoError(t, err)
	require.NoError(t, buf.Release())
	assert.ErrorIs(t, buf.Release(), ErrReleased)

	require.NoError(t, ctx.Close())
	assert.ErrorIs(t, ctx.Close(), ErrReleased)
	assert.Equal(t, 0, backend.Live())
}

func TestCompileMockIgnoresBracketsInComments(t *testing.T) {
	src := "// stray ) here\n/* and { here\n */\n__kernel void a(__global uchar *x) { x[0] = 1; }\nkernel void b(global uchar *y) { }\n"
	kernels, diags := compileMock(src)
	require.Empty(t, diags)
	assert.True(t, kernels["a"])
	assert.True(t, kernels["b"])
}

func TestMockBackendBuildsKernelWithBracketLiterals(t *testing.T) {
	src := `__kernel void hello_world(__global const uchar *input, __global uchar *output)
{
	size_t id = get_global_id(0);
	output[id] = input[id] == '}' ? input[id] : input[id];
	char open = '(', quote = '\'';
	__constant char *brace = "{ \" [";
}
`
	ctx, err := NewMockBackend().Open()
	require.NoError(t, err)
	defer ctx.Close()

	program, err := ctx.BuildProgram([]byte(src), "")
	require.NoError(t, err)
	defer program.Release()

	kernel, err := program.CreateKernel("hello_world")
	require.NoError(t, err)
	assert.NoError(t, kernel.Release())
}

func TestCompileMockUnterminatedLiteral(t *testing.T) {
	src := "kernel void k(global uchar *x)\n{\n\tx[0] = '{;\n}\n"
	_, diags := compileMock(src)
	require.Len(t, diags, 1)
	assert.Equal(t, "<program source>:3:9: error: missing terminating ' character", diags[0])
}

func TestMockBackendOpenFailures(t *testing.T) {
	injected := errors.New("CL_OUT_OF_HOST_MEMORY (-6)")
	tests := []struct {
		name   string
		faults MockFaults
		want   string
	}{
		{"context", MockFaults{CreateContext: injected}, "clCreateContext"},
		{"queue", MockFaults{CreateQueue: injected}, "clCreateCommandQueue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMockBackend()
			backend.Faults = tt.faults

			ctx, err := backend.Open()
			assert.Nil(t, ctx)
			assert.ErrorIs(t, err, injected)
			assert.ErrorContains(t, err, tt.want)
			assert.Equal(t, 0, backend.Live(), "context released after a failed open")
		})
	}
}

func TestMockBackendInfoFailure(t *testing.T) {
	backend := NewMockBackend()
	backend.Faults.Info = errors.New("CL_INVALID_VALUE (-30)")

	ctx, err := backend.Open()
	require.NoError(t, err)
	defer ctx.Close()

	platform, device, err := ctx.Info()
	assert.ErrorIs(t, err, backend.Faults.Info)
	assert.Empty(t, platform.Name)
	assert.Empty(t, device.Name)

	_, err = ctx.BuildProgram([]byte(identitySource), "")
	assert.NoError(t, err, "context remains usable")
}
