//go:build gpu

package gpu

/*
#cgo !darwin LDFLAGS: -lOpenCL
#cgo darwin LDFLAGS: -framework OpenCL
#define CL_TARGET_OPENCL_VERSION 120
#define CL_USE_DEPRECATED_OPENCL_1_2_APIS
#ifdef __APPLE__
#include <OpenCL/opencl.h>
#else
#include <CL/cl.h>
#endif
#include <stdlib.h>

static const char* hellocl_error_string(cl_int status) {
	switch (status) {
	case CL_SUCCESS: return "CL_SUCCESS";
	case CL_DEVICE_NOT_FOUND: return "CL_DEVICE_NOT_FOUND";
	case CL_DEVICE_NOT_AVAILABLE: return "CL_DEVICE_NOT_AVAILABLE";
	case CL_COMPILER_NOT_AVAILABLE: return "CL_COMPILER_NOT_AVAILABLE";
	case CL_MEM_OBJECT_ALLOCATION_FAILURE: return "CL_MEM_OBJECT_ALLOCATION_FAILURE";
	case CL_OUT_OF_RESOURCES: return "CL_OUT_OF_RESOURCES";
	case CL_OUT_OF_HOST_MEMORY: return "CL_OUT_OF_HOST_MEMORY";
	case CL_PROFILING_INFO_NOT_AVAILABLE: return "CL_PROFILING_INFO_NOT_AVAILABLE";
	case CL_MEM_COPY_OVERLAP: return "CL_MEM_COPY_OVERLAP";
	case CL_BUILD_PROGRAM_FAILURE: return "CL_BUILD_PROGRAM_FAILURE";
	case CL_MAP_FAILURE: return "CL_MAP_FAILURE";
	case CL_INVALID_VALUE: return "CL_INVALID_VALUE";
	case CL_INVALID_DEVICE_TYPE: return "CL_INVALID_DEVICE_TYPE";
	case CL_INVALID_PLATFORM: return "CL_INVALID_PLATFORM";
	case CL_INVALID_DEVICE: return "CL_INVALID_DEVICE";
	case CL_INVALID_CONTEXT: return "CL_INVALID_CONTEXT";
	case CL_INVALID_QUEUE_PROPERTIES: return "CL_INVALID_QUEUE_PROPERTIES";
	case CL_INVALID_COMMAND_QUEUE: return "CL_INVALID_COMMAND_QUEUE";
	case CL_INVALID_HOST_PTR: return "CL_INVALID_HOST_PTR";
	case CL_INVALID_MEM_OBJECT: return "CL_INVALID_MEM_OBJECT";
	case CL_INVALID_BINARY: return "CL_INVALID_BINARY";
	case CL_INVALID_BUILD_OPTIONS: return "CL_INVALID_BUILD_OPTIONS";
	case CL_INVALID_PROGRAM: return "CL_INVALID_PROGRAM";
	case CL_INVALID_PROGRAM_EXECUTABLE: return "CL_INVALID_PROGRAM_EXECUTABLE";
	case CL_INVALID_KERNEL_NAME: return "CL_INVALID_KERNEL_NAME";
	case CL_INVALID_KERNEL_DEFINITION: return "CL_INVALID_KERNEL_DEFINITION";
	case CL_INVALID_KERNEL: return "CL_INVALID_KERNEL";
	case CL_INVALID_ARG_INDEX: return "CL_INVALID_ARG_INDEX";
	case CL_INVALID_ARG_VALUE: return "CL_INVALID_ARG_VALUE";
	case CL_INVALID_ARG_SIZE: return "CL_INVALID_ARG_SIZE";
	case CL_INVALID_KERNEL_ARGS: return "CL_INVALID_KERNEL_ARGS";
	case CL_INVALID_WORK_DIMENSION: return "CL_INVALID_WORK_DIMENSION";
	case CL_INVALID_WORK_GROUP_SIZE: return "CL_INVALID_WORK_GROUP_SIZE";
	case CL_INVALID_WORK_ITEM_SIZE: return "CL_INVALID_WORK_ITEM_SIZE";
	case CL_INVALID_GLOBAL_OFFSET: return "CL_INVALID_GLOBAL_OFFSET";
	case CL_INVALID_EVENT_WAIT_LIST: return "CL_INVALID_EVENT_WAIT_LIST";
	case CL_INVALID_OPERATION: return "CL_INVALID_OPERATION";
	case CL_INVALID_BUFFER_SIZE: return "CL_INVALID_BUFFER_SIZE";
	default: return "CL_UNKNOWN_ERROR";
	}
}

static cl_command_queue hellocl_create_queue(cl_context ctx, cl_device_id device, cl_int *status) {
#if CL_TARGET_OPENCL_VERSION >= 200
	const cl_queue_properties props[] = {0};
	return clCreateCommandQueueWithProperties(ctx, device, props, status);
#else
	return clCreateCommandQueue(ctx, device, 0, status);
#endif
}
*/
import "C"

import (
	"fmt"
	"log/slog"
	"unsafe"
)

type openCLBackend struct{}

func newOpenCLBackend() Backend {
	return openCLBackend{}
}

func (openCLBackend) Name() string {
	return string(BackendOpenCL)
}

func (openCLBackend) Open() (Context, error) {
	rt, err := InitOpenCL()
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// Runtime owns the OpenCL platform, device, context and command queue.
type Runtime struct {
	platformID C.cl_platform_id
	deviceID   C.cl_device_id
	context    C.cl_context
	queue      C.cl_command_queue
}

var _ Context = (*Runtime)(nil)

// InitOpenCL selects the first platform and its first GPU device, then
// creates a context and one in-order command queue.
func InitOpenCL() (*Runtime, error) {
	var platform C.cl_platform_id
	var numPlatforms C.cl_uint
	status := C.clGetPlatformIDs(1, &platform, &numPlatforms)
	if status != C.CL_SUCCESS {
		return nil, fmt.Errorf("%w: %v", ErrNoPlatform, statusError("clGetPlatformIDs", status))
	}
	if numPlatforms == 0 {
		return nil, ErrNoPlatform
	}

	var device C.cl_device_id
	var numDevices C.cl_uint
	status = C.clGetDeviceIDs(platform, C.CL_DEVICE_TYPE_GPU, 1, &device, &numDevices)
	if status == C.CL_DEVICE_NOT_FOUND || (status == C.CL_SUCCESS && numDevices == 0) {
		return nil, ErrNoGPUDevice
	}
	if status != C.CL_SUCCESS {
		return nil, statusError("clGetDeviceIDs", status)
	}

	properties := [3]C.cl_context_properties{
		C.CL_CONTEXT_PLATFORM,
		C.cl_context_properties(uintptr(unsafe.Pointer(platform))),
		0,
	}

	context := C.clCreateContext(&properties[0], 1, &device, nil, nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateContext", status)
	}

	queue := C.hellocl_create_queue(context, device, &status)
	if status != C.CL_SUCCESS {
		C.clReleaseContext(context)
		return nil, statusError("clCreateCommandQueue", status)
	}

	return &Runtime{
		platformID: platform,
		deviceID:   device,
		context:    context,
		queue:      queue,
	}, nil
}

// Close releases the command queue and then the context.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var firstErr error
	if r.queue != nil {
		if status := C.clReleaseCommandQueue(r.queue); status != C.CL_SUCCESS {
			firstErr = statusError("clReleaseCommandQueue", status)
		}
		r.queue = nil
	}
	if r.context != nil {
		if status := C.clReleaseContext(r.context); status != C.CL_SUCCESS && firstErr == nil {
			firstErr = statusError("clReleaseContext", status)
		}
		r.context = nil
	}
	return firstErr
}

func (r *Runtime) Info() (PlatformInfo, DeviceInfo, error) {
	var platform PlatformInfo
	var err error
	if platform.Name, err = getPlatformString(r.platformID, C.CL_PLATFORM_NAME); err != nil {
		return PlatformInfo{}, DeviceInfo{}, err
	}
	if platform.Profile, err = getPlatformString(r.platformID, C.CL_PLATFORM_PROFILE); err != nil {
		return PlatformInfo{}, DeviceInfo{}, err
	}
	if platform.Version, err = getPlatformString(r.platformID, C.CL_PLATFORM_VERSION); err != nil {
		return PlatformInfo{}, DeviceInfo{}, err
	}
	if platform.Vendor, err = getPlatformString(r.platformID, C.CL_PLATFORM_VENDOR); err != nil {
		return PlatformInfo{}, DeviceInfo{}, err
	}

	device, err := buildDeviceInfo(r.deviceID)
	if err != nil {
		return platform, DeviceInfo{}, err
	}
	return platform, device, nil
}

func (r *Runtime) BuildProgram(source []byte, options string) (Program, error) {
	if len(source) == 0 {
		return nil, statusError("clCreateProgramWithSource", C.CL_INVALID_VALUE)
	}

	src := (*C.char)(C.CBytes(source))
	defer C.free(unsafe.Pointer(src))
	length := C.size_t(len(source))

	var status C.cl_int
	program := C.clCreateProgramWithSource(r.context, 1, &src, &length, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError("clCreateProgramWithSource", status)
	}

	opts := C.CString(options)
	defer C.free(unsafe.Pointer(opts))

	device := r.deviceID
	status = C.clBuildProgram(program, 1, &device, opts, nil, nil)
	if status != C.CL_SUCCESS {
		buildErr := &BuildError{Status: statusName(status)}
		log, err := buildLog(program, device)
		if err != nil {
			slog.Error("OpenCL: failed to fetch build log", "err", err)
		}
		buildErr.Log = log
		C.clReleaseProgram(program)
		return nil, buildErr
	}

	return &clProgram{id: program}, nil
}

// buildLog queries the log size first and fetches into a buffer of exactly
// that size.
func buildLog(program C.cl_program, device C.cl_device_id) (string, error) {
	var logSize C.size_t
	status := C.clGetProgramBuildInfo(program, device, C.CL_PROGRAM_BUILD_LOG, 0, nil, &logSize)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetProgramBuildInfo(size)", status)
	}
	if logSize == 0 {
		return "", nil
	}

	buf := make([]byte, int(logSize))
	status = C.clGetProgramBuildInfo(program, device, C.CL_PROGRAM_BUILD_LOG, logSize, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetProgramBuildInfo(log)", status)
	}
	return trimNull(buf), nil
}

func (r *Runtime) NewBuffer(access MemAccess, size int) (Buffer, error) {
	var flags C.cl_mem_flags
	switch access {
	case MemReadOnly:
		flags = C.CL_MEM_READ_ONLY
	case MemWriteOnly:
		flags = C.CL_MEM_WRITE_ONLY
	default:
		flags = C.CL_MEM_READ_WRITE
	}

	var status C.cl_int
	mem := C.clCreateBuffer(r.context, flags, C.size_t(size), nil, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError(fmt.Sprintf("clCreateBuffer(%s)", access), status)
	}
	return &clBuffer{mem: mem, size: size, access: access}, nil
}

func (r *Runtime) WriteBuffer(buf Buffer, src []byte) error {
	b, err := asCLBuffer(buf)
	if err != nil {
		return err
	}
	if len(src) > b.size {
		return statusError("clEnqueueWriteBuffer", C.CL_INVALID_VALUE)
	}
	if len(src) == 0 {
		return nil
	}
	status := C.clEnqueueWriteBuffer(r.queue, b.mem, C.CL_TRUE, 0, C.size_t(len(src)), unsafe.Pointer(&src[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueWriteBuffer", status)
	}
	return nil
}

func (r *Runtime) EnqueueKernel(k Kernel, global, local int) error {
	kernel, ok := k.(*clKernel)
	if !ok || kernel.id == nil {
		return ErrForeignHandle
	}
	g := C.size_t(global)
	l := C.size_t(local)
	status := C.clEnqueueNDRangeKernel(r.queue, kernel.id, 1, nil, &g, &l, 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueNDRangeKernel", status)
	}
	return nil
}

func (r *Runtime) Flush() error {
	if status := C.clFlush(r.queue); status != C.CL_SUCCESS {
		return statusError("clFlush", status)
	}
	return nil
}

func (r *Runtime) Finish() error {
	if status := C.clFinish(r.queue); status != C.CL_SUCCESS {
		return statusError("clFinish", status)
	}
	return nil
}

func (r *Runtime) ReadBuffer(buf Buffer, dst []byte) error {
	b, err := asCLBuffer(buf)
	if err != nil {
		return err
	}
	if len(dst) > b.size {
		return statusError("clEnqueueReadBuffer", C.CL_INVALID_VALUE)
	}
	if len(dst) == 0 {
		return nil
	}
	status := C.clEnqueueReadBuffer(r.queue, b.mem, C.CL_TRUE, 0, C.size_t(len(dst)), unsafe.Pointer(&dst[0]), 0, nil, nil)
	if status != C.CL_SUCCESS {
		return statusError("clEnqueueReadBuffer", status)
	}
	return nil
}

type clProgram struct {
	id C.cl_program
}

func (p *clProgram) CreateKernel(name string) (Kernel, error) {
	if p.id == nil {
		return nil, ErrReleased
	}
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var status C.cl_int
	kernel := C.clCreateKernel(p.id, cname, &status)
	if status != C.CL_SUCCESS {
		return nil, statusError(fmt.Sprintf("clCreateKernel(%s)", name), status)
	}
	return &clKernel{id: kernel, name: name}, nil
}

func (p *clProgram) Release() error {
	if p.id == nil {
		return ErrReleased
	}
	status := C.clReleaseProgram(p.id)
	p.id = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseProgram", status)
	}
	return nil
}

type clKernel struct {
	id   C.cl_kernel
	name string
}

func (k *clKernel) Name() string {
	return k.name
}

func (k *clKernel) SetBufferArg(index int, buf Buffer) error {
	if k.id == nil {
		return ErrReleased
	}
	b, err := asCLBuffer(buf)
	if err != nil {
		return err
	}
	mem := b.mem
	status := C.clSetKernelArg(k.id, C.cl_uint(index), C.size_t(unsafe.Sizeof(mem)), unsafe.Pointer(&mem))
	if status != C.CL_SUCCESS {
		return statusError(fmt.Sprintf("clSetKernelArg(%d)", index), status)
	}
	return nil
}

func (k *clKernel) Release() error {
	if k.id == nil {
		return ErrReleased
	}
	status := C.clReleaseKernel(k.id)
	k.id = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseKernel", status)
	}
	return nil
}

type clBuffer struct {
	mem    C.cl_mem
	size   int
	access MemAccess
}

func (b *clBuffer) Size() int         { return b.size }
func (b *clBuffer) Access() MemAccess { return b.access }

func (b *clBuffer) Release() error {
	if b.mem == nil {
		return ErrReleased
	}
	status := C.clReleaseMemObject(b.mem)
	b.mem = nil
	if status != C.CL_SUCCESS {
		return statusError("clReleaseMemObject", status)
	}
	return nil
}

func asCLBuffer(buf Buffer) (*clBuffer, error) {
	b, ok := buf.(*clBuffer)
	if !ok {
		return nil, ErrForeignHandle
	}
	if b.mem == nil {
		return nil, ErrReleased
	}
	return b, nil
}

func buildDeviceInfo(id C.cl_device_id) (DeviceInfo, error) {
	name, err := getDeviceString(id, C.CL_DEVICE_NAME)
	if err != nil {
		return DeviceInfo{}, err
	}
	profile, err := getDeviceString(id, C.CL_DEVICE_PROFILE)
	if err != nil {
		return DeviceInfo{}, err
	}
	version, err := getDeviceString(id, C.CL_DEVICE_VERSION)
	if err != nil {
		return DeviceInfo{}, err
	}
	vendor, err := getDeviceString(id, C.CL_DEVICE_VENDOR)
	if err != nil {
		return DeviceInfo{}, err
	}

	var rawType C.cl_device_type
	status := C.clGetDeviceInfo(id, C.CL_DEVICE_TYPE, C.size_t(unsafe.Sizeof(rawType)), unsafe.Pointer(&rawType), nil)
	if status != C.CL_SUCCESS {
		return DeviceInfo{}, statusError("clGetDeviceInfo(type)", status)
	}

	var dims C.cl_uint
	status = C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_WORK_ITEM_DIMENSIONS, C.size_t(unsafe.Sizeof(dims)), unsafe.Pointer(&dims), nil)
	if status != C.CL_SUCCESS {
		return DeviceInfo{}, statusError("clGetDeviceInfo(maxWorkItemDimensions)", status)
	}

	var groupSize C.size_t
	status = C.clGetDeviceInfo(id, C.CL_DEVICE_MAX_WORK_GROUP_SIZE, C.size_t(unsafe.Sizeof(groupSize)), unsafe.Pointer(&groupSize), nil)
	if status != C.CL_SUCCESS {
		return DeviceInfo{}, statusError("clGetDeviceInfo(maxWorkGroupSize)", status)
	}

	return DeviceInfo{
		Name:                  name,
		Profile:               profile,
		Version:               version,
		Vendor:                vendor,
		Type:                  mapDeviceType(rawType),
		MaxWorkItemDimensions: uint32(dims),
		MaxWorkGroupSize:      int(groupSize),
	}, nil
}

func getPlatformString(id C.cl_platform_id, param C.cl_platform_info) (string, error) {
	var size C.size_t
	status := C.clGetPlatformInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = C.clGetPlatformInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetPlatformInfo(value)", status)
	}

	return trimNull(buf), nil
}

func getDeviceString(id C.cl_device_id, param C.cl_device_info) (string, error) {
	var size C.size_t
	status := C.clGetDeviceInfo(id, param, 0, nil, &size)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(size)", status)
	}
	if size == 0 {
		return "", nil
	}

	buf := make([]byte, int(size))
	status = C.clGetDeviceInfo(id, param, size, unsafe.Pointer(&buf[0]), nil)
	if status != C.CL_SUCCESS {
		return "", statusError("clGetDeviceInfo(value)", status)
	}

	return trimNull(buf), nil
}

func mapDeviceType(dt C.cl_device_type) DeviceType {
	switch {
	case dt&C.CL_DEVICE_TYPE_GPU != 0:
		return DeviceTypeGPU
	case dt&C.CL_DEVICE_TYPE_CPU != 0:
		return DeviceTypeCPU
	case dt&C.CL_DEVICE_TYPE_ACCELERATOR != 0:
		return DeviceTypeAccelerator
	case dt&C.CL_DEVICE_TYPE_DEFAULT != 0:
		return DeviceTypeDefault
	default:
		return DeviceTypeUnknown
	}
}

func statusName(status C.cl_int) string {
	return C.GoString(C.hellocl_error_string(status))
}

func statusError(call string, status C.cl_int) error {
	return fmt.Errorf("%s: %s (%d)", call, statusName(status), int(status))
}

func trimNull(buf []byte) string {
	for len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf)
}
