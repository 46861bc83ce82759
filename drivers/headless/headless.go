// Package headless implements a pure-Go, in-process compute driver.
//
// It backs two roles: the CPU fallback when no GPU driver is usable, and
// the substrate the test suite and examples run on. Device memory is plain
// Go byte slices; kernel entry points are resolved by scanning the program
// source for __kernel declarations; launches call a Go function registered
// per driver instance once per work item, chunked across a worker pool, or
// complete as no-ops when none is registered for the kernel's name.
package headless

import (
	"runtime"
	"sync"

	"github.com/forcegl/forcegl/drivers"
	"github.com/forcegl/forcegl/internal/workpool"
)

// DriverName to be used in FORCEGL_DRIVER to specify this driver.
const DriverName = "headless"

func init() {
	drivers.Register(DriverName, New)
}

// New constructs a headless Driver. There are no configurations, the
// string is simply ignored.
func New(_ string) (drivers.Driver, error) {
	return &Driver{
		kernels: make(map[string]KernelFunc),
		pool:    workpool.New(),
	}, nil
}

// Arg is a kernel argument as seen by a registered KernelFunc: buffer
// arguments carry the backing bytes in Data, scalar arguments carry the
// bound value in Scalar.
type Arg struct {
	Scalar any
	Data   []byte
}

// KernelFunc executes one work item of a named kernel: it is called once
// per global id over the currently bound arguments, mirroring how a GPU
// invokes one kernel instance per work item. Launches run the ids in
// parallel chunks, so implementations must only write state owned by
// their own gid.
type KernelFunc func(gid int, args []Arg) error

// Driver implements drivers.Driver with a single CPU-class,
// sharing-capable device. Kernel implementations are scoped to the driver
// instance, never to the package.
type Driver struct {
	mu      sync.RWMutex
	kernels map[string]KernelFunc
	pool    *workpool.Pool
}

var _ drivers.Driver = (*Driver)(nil)

func (d *Driver) Name() string { return DriverName }

func (d *Driver) Platforms() ([]drivers.Platform, error) {
	return []drivers.Platform{&platform{driver: d}}, nil
}

// RegisterKernel installs the Go implementation run for launches of the
// named kernel. Launches of kernels without an implementation complete as
// no-ops.
func (d *Driver) RegisterKernel(name string, fn KernelFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.kernels[name] = fn
}

func (d *Driver) kernelFunc(name string) KernelFunc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.kernels[name]
}

type platform struct {
	driver *Driver
}

func (p *platform) Name() string { return DriverName }

func (p *platform) Devices(filter drivers.Class) ([]drivers.Device, error) {
	if !filter.Matches(drivers.ClassCPU) {
		return nil, nil
	}
	return []drivers.Device{&device{driver: p.driver}}, nil
}

type device struct {
	driver *Driver
}

func (d *device) Info() drivers.DeviceInfo {
	n := int64(runtime.NumCPU())
	return drivers.DeviceInfo{
		Platform:         DriverName,
		Vendor:           "forcegl",
		Name:             "headless-cpu",
		Class:            drivers.ClassCPU,
		MaxWorkItemSizes: []int64{n, 1, 1},
		MaxWorkGroupSize: 1,
		ComputeUnits:     runtime.NumCPU(),
		SurfaceSharing:   true,
	}
}

func (d *device) NewContext(surface drivers.Surface) (drivers.Context, error) {
	return &context{driver: d.driver, surface: surface}, nil
}
