package gpu

// DeviceType describes the class of an OpenCL device.
type DeviceType string

const (
	DeviceTypeGPU         DeviceType = "GPU"
	DeviceTypeCPU         DeviceType = "CPU"
	DeviceTypeAccelerator DeviceType = "Accelerator"
	DeviceTypeDefault     DeviceType = "Default"
	DeviceTypeUnknown     DeviceType = "Unknown"
)

// MemAccess is the kernel-side access mode of a device buffer.
type MemAccess int

const (
	MemReadWrite MemAccess = iota
	MemReadOnly
	MemWriteOnly
)

func (a MemAccess) String() string {
	switch a {
	case MemReadOnly:
		return "read-only"
	case MemWriteOnly:
		return "write-only"
	default:
		return "read-write"
	}
}

// PlatformInfo captures metadata about the selected OpenCL platform.
type PlatformInfo struct {
	Name    string `json:"name"`
	Profile string `json:"profile"`
	Version string `json:"version"`
	Vendor  string `json:"vendor"`
}

// DeviceInfo captures metadata about the selected OpenCL device.
type DeviceInfo struct {
	Name                  string     `json:"name"`
	Profile               string     `json:"profile"`
	Version               string     `json:"version"`
	Vendor                string     `json:"vendor"`
	Type                  DeviceType `json:"type"`
	MaxWorkItemDimensions uint32     `json:"maxWorkItemDimensions"`
	MaxWorkGroupSize      int        `json:"maxWorkGroupSize"`
}
