package compute

// In-memory fake of the drivers interfaces, instrumented so tests can
// inject failures and count acquire/release traffic.

import (
	"flag"
	"testing"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/forcegl/forcegl/drivers"
)

func TestMain(m *testing.M) {
	klog.InitFlags(nil)
	flag.Parse()
	m.Run()
}

type fakeMem struct {
	data      []byte
	finalized bool
}

func (m *fakeMem) Size() int       { return len(m.data) }
func (m *fakeMem) Finalize() error { m.finalized = true; return nil }

type fakeQueue struct {
	acquires   int
	releases   int
	finishes   int
	runs       []int
	acquireErr error
	releaseErr error
	runErr     error
}

var _ drivers.Queue = (*fakeQueue)(nil)

func (q *fakeQueue) Write(m drivers.Mem, data []byte) error {
	fm := m.(*fakeMem)
	if len(data) > len(fm.data) {
		return errors.Errorf("write of %d bytes overflows buffer of %d bytes", len(data), len(fm.data))
	}
	copy(fm.data, data)
	return nil
}

func (q *fakeQueue) Read(m drivers.Mem, dst []byte) error {
	copy(dst, m.(*fakeMem).data)
	return nil
}

func (q *fakeQueue) Copy(src, dst drivers.Mem, n int) error {
	copy(dst.(*fakeMem).data[:n], src.(*fakeMem).data[:n])
	return nil
}

func (q *fakeQueue) AcquireSurfaceMem(drivers.Mem) error {
	if q.acquireErr != nil {
		return q.acquireErr
	}
	q.acquires++
	return nil
}

func (q *fakeQueue) ReleaseSurfaceMem(drivers.Mem) error {
	if q.releaseErr != nil {
		return q.releaseErr
	}
	q.releases++
	return nil
}

func (q *fakeQueue) Run(k drivers.Kernel, global int) error {
	if q.runErr != nil {
		return q.runErr
	}
	q.runs = append(q.runs, global)
	return nil
}

func (q *fakeQueue) Finish() error { q.finishes++; return nil }

type fakeKernel struct {
	name string
	args map[int]drivers.ArgValue
}

func (k *fakeKernel) Name() string { return k.name }

func (k *fakeKernel) SetArg(index int, arg drivers.ArgValue) error {
	if k.args == nil {
		k.args = make(map[int]drivers.ArgValue)
	}
	k.args[index] = arg
	return nil
}

type fakeProgram struct {
	// names limits which kernel names resolve; nil resolves everything.
	names     map[string]bool
	kernels   map[string]*fakeKernel
	finalized bool
}

func (p *fakeProgram) Kernel(name string) (drivers.Kernel, error) {
	if p.names != nil && !p.names[name] {
		return nil, errors.Errorf("kernel %q not declared in program", name)
	}
	if p.kernels == nil {
		p.kernels = make(map[string]*fakeKernel)
	}
	k := &fakeKernel{name: name}
	p.kernels[name] = k
	return k, nil
}

func (p *fakeProgram) Finalize() { p.finalized = true }

type fakeDriverContext struct {
	q          *fakeQueue
	queueErr   error
	allocErr   error
	compileErr error
	// kernelNames limits resolvable kernels in compiled programs.
	kernelNames map[string]bool
	compiled    []string
	programs    []*fakeProgram
	finalized   bool
}

var _ drivers.Context = (*fakeDriverContext)(nil)

func newFakeDriverContext() *fakeDriverContext {
	return &fakeDriverContext{q: &fakeQueue{}}
}

func (c *fakeDriverContext) NewQueue() (drivers.Queue, error) {
	if c.queueErr != nil {
		return nil, c.queueErr
	}
	return c.q, nil
}

func (c *fakeDriverContext) Compile(source string) (drivers.Program, error) {
	c.compiled = append(c.compiled, source)
	if c.compileErr != nil {
		return nil, c.compileErr
	}
	p := &fakeProgram{names: c.kernelNames}
	c.programs = append(c.programs, p)
	return p, nil
}

func (c *fakeDriverContext) AllocMem(size int) (drivers.Mem, error) {
	if c.allocErr != nil {
		return nil, c.allocErr
	}
	return &fakeMem{data: make([]byte, size)}, nil
}

func (c *fakeDriverContext) BindSurfaceMem(handle drivers.SurfaceBuffer) (drivers.Mem, error) {
	return &fakeMem{data: handle.Bytes()}, nil
}

func (c *fakeDriverContext) Finalize() { c.finalized = true }

type fakeDevice struct {
	info   drivers.DeviceInfo
	dctx   *fakeDriverContext
	ctxErr error
}

var _ drivers.Device = (*fakeDevice)(nil)

func (d *fakeDevice) Info() drivers.DeviceInfo { return d.info }

func (d *fakeDevice) NewContext(_ drivers.Surface) (drivers.Context, error) {
	if d.ctxErr != nil {
		return nil, d.ctxErr
	}
	if d.dctx == nil {
		d.dctx = newFakeDriverContext()
	}
	return d.dctx, nil
}

type fakePlatform struct {
	name    string
	devices []drivers.Device
}

func (p *fakePlatform) Name() string { return p.name }

func (p *fakePlatform) Devices(filter drivers.Class) ([]drivers.Device, error) {
	var list []drivers.Device
	for _, d := range p.devices {
		if filter.Matches(d.Info().Class) {
			list = append(list, d)
		}
	}
	return list, nil
}

type fakeDriver struct {
	platforms []drivers.Platform
}

func (d *fakeDriver) Name() string { return "fake" }

func (d *fakeDriver) Platforms() ([]drivers.Platform, error) { return d.platforms, nil }

type fakeSurfaceBuffer struct {
	name string
	data []byte
}

func (b *fakeSurfaceBuffer) Name() string  { return b.name }
func (b *fakeSurfaceBuffer) Size() int     { return len(b.data) }
func (b *fakeSurfaceBuffer) Bytes() []byte { return b.data }

type fakeSurface struct {
	sharing bool
	flushes int
	bufs    map[string]*fakeSurfaceBuffer
}

var _ drivers.Surface = (*fakeSurface)(nil)

func (s *fakeSurface) SupportsSharing() bool { return s.sharing }

func (s *fakeSurface) Flush() error { s.flushes++; return nil }

func (s *fakeSurface) Buffer(name string) (drivers.SurfaceBuffer, error) {
	b, ok := s.bufs[name]
	if !ok {
		return nil, errors.Errorf("surface has no buffer %q", name)
	}
	return b, nil
}

// gpuInfo builds a GPU-class DeviceInfo with the given vendor and a rank of
// the product of sizes.
func gpuInfo(vendor, name string, sizes ...int64) drivers.DeviceInfo {
	return drivers.DeviceInfo{
		Platform:         "fake",
		Vendor:           vendor,
		Name:             name,
		Class:            drivers.ClassGPU,
		MaxWorkItemSizes: sizes,
		MaxWorkGroupSize: 256,
		ComputeUnits:     16,
		SurfaceSharing:   true,
	}
}

func singleDeviceDriver(dev *fakeDevice) *fakeDriver {
	return &fakeDriver{platforms: []drivers.Platform{
		&fakePlatform{name: "fake", devices: []drivers.Device{dev}},
	}}
}

// newTestContext enumerates a single sharing-capable GPU device and opens a
// context on it.
func newTestContext(t *testing.T, surface drivers.Surface) (*Context, *fakeDriverContext) {
	t.Helper()
	dev := &fakeDevice{info: gpuInfo("FakeVendor", "fake-gpu", 1024, 1, 1)}
	devices, err := Enumerate(singleDeviceDriver(dev), drivers.ClassAll, nil)
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	ctx, err := NewContext(devices, surface)
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	t.Cleanup(ctx.Finalize)
	return ctx, dev.dctx
}
