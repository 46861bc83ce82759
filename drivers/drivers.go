// Package drivers defines the interface a compute-API driver needs to
// implement to run kernel programs for the layout simulator.
//
// A driver exposes platforms, each holding devices; a device opens a context
// owning a single in-order command queue. Programs, kernels and device memory
// are scoped to a context. The orchestration layer in package compute never
// talks to a concrete compute API directly, only through these interfaces,
// so independent sessions can coexist in one process and tests can swap in
// the headless driver.
package drivers

// Class describes the broad kind of processor behind a device.
type Class int32

const (
	ClassUnknown Class = iota
	ClassCPU
	ClassGPU
	ClassAccelerator
)

// ClassAll matches every device class when used as an enumeration filter.
const ClassAll Class = -1

// String returns the lower-case name used in logs and diagnostics.
func (c Class) String() string {
	switch c {
	case ClassAll:
		return "all"
	case ClassCPU:
		return "cpu"
	case ClassGPU:
		return "gpu"
	case ClassAccelerator:
		return "accelerator"
	default:
		return "unknown"
	}
}

// Matches reports whether a device of class dc passes the filter c.
func (c Class) Matches(dc Class) bool {
	return c == ClassAll || c == dc
}

// DeviceInfo is the immutable descriptor a driver reports for one device.
type DeviceInfo struct {
	// Platform is the name of the platform the device belongs to.
	Platform string

	// Vendor is the hardware vendor string, used by the preferred-vendor
	// ranking policy. Drivers that cannot query a separate vendor string
	// fill in the device name, which carries the vendor token in practice.
	Vendor string

	// Name is the human-readable device name.
	Name string

	Class Class

	// MaxWorkItemSizes holds the per-dimension maximum concurrent
	// work-item counts. Their product is the device ranking metric.
	MaxWorkItemSizes []int64

	// MaxWorkGroupSize is the largest single work-group the device accepts.
	MaxWorkGroupSize int

	// ComputeUnits is the number of parallel compute units, when known.
	ComputeUnits int

	// SurfaceSharing reports whether contexts on this device can alias
	// renderer-owned memory.
	SurfaceSharing bool
}

// Driver is the entry point implemented by every registered compute driver.
type Driver interface {
	// Name returns the short registered name, e.g. "headless" or "wgpu".
	Name() string

	// Platforms lists the compute platforms the driver can see.
	// An empty list means no usable platform is present on this host.
	Platforms() ([]Platform, error)
}

// Platform groups the devices of one installed compute implementation.
type Platform interface {
	Name() string

	// Devices lists the platform's devices passing the class filter.
	Devices(filter Class) ([]Device, error)
}

// Device is an enumerated processor that can open contexts.
type Device interface {
	Info() DeviceInfo

	// NewContext opens a context on the device. A non-nil surface requests
	// renderer-memory sharing; drivers whose devices report
	// SurfaceSharing false must reject it.
	NewContext(surface Surface) (Context, error)
}

// Context owns the driver-side state for one session on one device.
// All programs and memory created through it become invalid after Finalize.
type Context interface {
	// NewQueue creates a command queue. The orchestration layer creates
	// exactly one queue per context and relies on its in-order execution.
	NewQueue() (Queue, error)

	// Compile builds kernel source text into a program.
	Compile(source string) (Program, error)

	// AllocMem allocates size bytes of device memory.
	AllocMem(size int) (Mem, error)

	// BindSurfaceMem wraps renderer-owned memory so the compute queue can
	// operate on it inside acquire/release windows.
	BindSurfaceMem(handle SurfaceBuffer) (Mem, error)

	// Finalize releases the context's resources immediately. It is
	// idempotent.
	Finalize()
}

// Queue is a single in-order command queue. All operations are blocking
// from the driver's perspective; asynchrony is layered on top.
type Queue interface {
	// Write copies host data into device memory.
	Write(mem Mem, data []byte) error

	// Read copies len(dst) bytes of device memory back to the host.
	Read(mem Mem, dst []byte) error

	// Copy transfers n bytes device-to-device.
	Copy(src, dst Mem, n int) error

	// AcquireSurfaceMem takes ownership of renderer-shared memory for the
	// compute queue. Only valid for memory created by BindSurfaceMem.
	AcquireSurfaceMem(mem Mem) error

	// ReleaseSurfaceMem returns renderer-shared memory to the renderer.
	ReleaseSurfaceMem(mem Mem) error

	// Run enqueues a kernel with a one-dimensional global work size.
	Run(kernel Kernel, global int) error

	// Finish drains the queue, returning once all enqueued work completed.
	Finish() error
}

// Program is a compiled kernel program.
type Program interface {
	// Kernel resolves a compiled entry point by name.
	Kernel(name string) (Kernel, error)

	// Finalize releases the program. Kernels resolved from it become
	// invalid.
	Finalize()
}

// ArgHint optionally tags a kernel argument with its intended device type.
// Hints exist for older compute-API variants that cannot infer argument
// types from the compiled signature; modern drivers treat them as advisory.
type ArgHint int32

const (
	HintNone ArgHint = iota
	HintInt32
	HintUint32
	HintFloat32
	HintFloat64
	HintMem
)

// ArgValue is one positional kernel argument: either a scalar value or a
// Mem handle for buffer arguments, plus the optional advisory hint.
type ArgValue struct {
	Value any
	Hint  ArgHint
}

// Kernel is a compiled entry point with rebindable positional arguments.
type Kernel interface {
	Name() string

	// SetArg binds one positional argument. Positions not set since the
	// last launch keep their previous binding.
	SetArg(index int, arg ArgValue) error
}

// Mem is a block of device memory.
type Mem interface {
	// Size returns the allocation size in bytes.
	Size() int

	// Finalize frees the allocation.
	Finalize() error
}

// Surface is the rendering surface collaborator, supplied by the renderer
// at context creation. It is never owned by this layer.
type Surface interface {
	// SupportsSharing reports whether the renderer side can hand buffer
	// ownership to a compute queue at all.
	SupportsSharing() bool

	// Flush orders all pending renderer work on shared memory. Called
	// before the compute queue acquires and after it releases.
	Flush() error

	// Buffer looks up a named renderer buffer handle.
	Buffer(name string) (SurfaceBuffer, error)
}

// SurfaceBuffer is a named renderer buffer handle with a declared byte size
// and, optionally, initial data.
type SurfaceBuffer interface {
	Name() string
	Size() int

	// Bytes exposes the renderer-side memory, or nil when the renderer
	// does not share host-visible data. Callers must not retain the slice
	// beyond the call that received it.
	Bytes() []byte
}
