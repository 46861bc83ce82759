// Package wgpu implements a compute driver on top of WebGPU, using the
// Vulkan backend. It compiles WGSL programs through naga and dispatches
// compute passes on real GPU hardware.
//
// The driver does not support surface-buffer sharing: a renderer surface
// handed to the orchestration layer falls back to copied buffers.
package wgpu

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	// Registers the Vulkan backend via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/forcegl/forcegl/drivers"
)

// DriverName to be used in FORCEGL_DRIVER to specify this driver.
const DriverName = "wgpu"

func init() {
	drivers.Register(DriverName, New)
}

// New constructs a wgpu Driver. The config string is ignored. It fails if
// the Vulkan backend is not available on this machine.
func New(_ string) (drivers.Driver, error) {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return nil, errors.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return nil, errors.Wrapf(err, "creating wgpu instance")
	}
	return &Driver{instance: instance}, nil
}

type Driver struct {
	instance hal.Instance
}

var _ drivers.Driver = (*Driver)(nil)

func (d *Driver) Name() string { return DriverName }

func (d *Driver) Platforms() ([]drivers.Platform, error) {
	return []drivers.Platform{&platform{instance: d.instance}}, nil
}

type platform struct {
	instance hal.Instance
}

func (p *platform) Name() string { return "vulkan" }

func (p *platform) Devices(filter drivers.Class) ([]drivers.Device, error) {
	adapters := p.instance.EnumerateAdapters(nil)
	var list []drivers.Device
	for i := range adapters {
		class := classOf(adapters[i].Info.DeviceType)
		if !filter.Matches(class) {
			continue
		}
		list = append(list, &device{adapter: &adapters[i], class: class})
	}
	klog.V(1).Infof("wgpu: %d of %d adapters match class filter %s",
		len(list), len(adapters), filter)
	return list, nil
}

func classOf(t gputypes.DeviceType) drivers.Class {
	switch t {
	case gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU,
		gputypes.DeviceTypeVirtualGPU:
		return drivers.ClassGPU
	case gputypes.DeviceTypeCPU:
		return drivers.ClassCPU
	default:
		return drivers.ClassUnknown
	}
}

type device struct {
	adapter *hal.ExposedAdapter
	class   drivers.Class
}

func (d *device) Info() drivers.DeviceInfo {
	limits := gputypes.DefaultLimits()
	return drivers.DeviceInfo{
		Platform: "vulkan",
		Vendor:   d.adapter.Info.Name,
		Name:     d.adapter.Info.Name,
		Class:    d.class,
		MaxWorkItemSizes: []int64{
			int64(limits.MaxComputeWorkgroupSizeX),
			int64(limits.MaxComputeWorkgroupSizeY),
			int64(limits.MaxComputeWorkgroupSizeZ),
		},
		MaxWorkGroupSize: int(limits.MaxComputeWorkgroupSizeX),
		ComputeUnits:     0,
		SurfaceSharing:   false,
	}
}

func (d *device) NewContext(surface drivers.Surface) (drivers.Context, error) {
	if surface != nil {
		return nil, errors.Errorf("wgpu driver does not support surface-buffer sharing")
	}
	openDev, err := d.adapter.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, errors.Wrapf(err, "opening adapter %q", d.adapter.Info.Name)
	}
	return &context{device: openDev.Device, queue: openDev.Queue}, nil
}
