package wgpu

import (
	"regexp"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/forcegl/forcegl/drivers"
)

type context struct {
	device hal.Device
	queue  hal.Queue
}

var _ drivers.Context = (*context)(nil)

func (c *context) NewQueue() (drivers.Queue, error) {
	return &queue{device: c.device, queue: c.queue}, nil
}

func (c *context) AllocMem(size int) (drivers.Mem, error) {
	if size <= 0 {
		return nil, errors.Errorf("cannot allocate %d bytes", size)
	}
	buf, err := c.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "forcegl_storage",
		Size:  uint64(size),
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating storage buffer of %d bytes", size)
	}
	return &mem{device: c.device, buf: buf, size: size}, nil
}

func (c *context) BindSurfaceMem(_ drivers.SurfaceBuffer) (drivers.Mem, error) {
	return nil, errors.Errorf("wgpu driver does not support surface-buffer sharing")
}

// entryPointRe matches compute entry point declarations in WGSL source.
var entryPointRe = regexp.MustCompile(`(?s)@compute\b.*?\bfn\s+([A-Za-z_][A-Za-z0-9_]*)`)

// Compile validates source through naga and creates the shader module.
// Pipelines are built lazily, per kernel, at first launch: the bind group
// layout depends on the argument layout, which is only known after SetArg.
func (c *context) Compile(source string) (drivers.Program, error) {
	if _, err := naga.Compile(source); err != nil {
		return nil, errors.Wrapf(err, "WGSL validation failed")
	}
	module, err := c.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "forcegl_program",
		Source: hal.ShaderSource{WGSL: source},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating shader module")
	}

	names := make(map[string]bool)
	for _, m := range entryPointRe.FindAllStringSubmatch(source, -1) {
		names[m[1]] = true
	}
	if len(names) == 0 {
		c.device.DestroyShaderModule(module)
		return nil, errors.Errorf("no @compute entry points found in program source")
	}
	return &program{device: c.device, module: module, names: names}, nil
}

func (c *context) Finalize() {}

type program struct {
	device hal.Device
	module hal.ShaderModule
	names  map[string]bool
}

var _ drivers.Program = (*program)(nil)

func (p *program) Kernel(name string) (drivers.Kernel, error) {
	if !p.names[name] {
		return nil, errors.Errorf("entry point %q not declared in program", name)
	}
	return &kernel{device: p.device, module: p.module, name: name}, nil
}

func (p *program) Finalize() {
	if p.module != nil {
		p.device.DestroyShaderModule(p.module)
		p.module = nil
	}
	p.names = nil
}

type kernel struct {
	device hal.Device
	module hal.ShaderModule
	name   string
	args   []drivers.ArgValue

	// Pipeline for the current argument layout, rebuilt when the layout
	// signature changes between launches.
	pipeline   hal.ComputePipeline
	pipeLayout hal.PipelineLayout
	bgLayout   hal.BindGroupLayout
	signature  string
}

var _ drivers.Kernel = (*kernel)(nil)

func (k *kernel) Name() string { return k.name }

func (k *kernel) SetArg(index int, arg drivers.ArgValue) error {
	if index < 0 {
		return errors.Errorf("negative argument index %d", index)
	}
	for len(k.args) <= index {
		k.args = append(k.args, drivers.ArgValue{})
	}
	k.args[index] = arg
	return nil
}

// layoutSignature encodes which argument positions are buffers versus
// scalars, one byte per position.
func (k *kernel) layoutSignature() string {
	sig := make([]byte, len(k.args))
	for i, a := range k.args {
		if _, ok := a.Value.(*mem); ok {
			sig[i] = 'b'
		} else {
			sig[i] = 's'
		}
	}
	return string(sig)
}

// ensurePipeline builds the bind group layout, pipeline layout and compute
// pipeline for the kernel's current argument layout. Buffer arguments bind
// as storage buffers, scalar arguments as uniform buffers, each at the
// binding index equal to its argument position, all in group 0.
func (k *kernel) ensurePipeline() error {
	sig := k.layoutSignature()
	if k.pipeline != nil && sig == k.signature {
		return nil
	}
	k.destroyPipeline()

	entries := make([]gputypes.BindGroupLayoutEntry, len(k.args))
	for i, a := range k.args {
		bindingType := gputypes.BufferBindingTypeUniform
		if _, ok := a.Value.(*mem); ok {
			bindingType = gputypes.BufferBindingTypeStorage
		}
		entries[i] = gputypes.BindGroupLayoutEntry{
			Binding:    uint32(i),
			Visibility: gputypes.ShaderStageCompute,
			Buffer: &gputypes.BufferBindingLayout{
				Type: bindingType,
			},
		}
	}

	bgLayout, err := k.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   k.name + "_layout",
		Entries: entries,
	})
	if err != nil {
		return errors.Wrapf(err, "creating bind group layout for %q", k.name)
	}
	pipeLayout, err := k.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            k.name + "_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{bgLayout},
	})
	if err != nil {
		k.device.DestroyBindGroupLayout(bgLayout)
		return errors.Wrapf(err, "creating pipeline layout for %q", k.name)
	}
	pipeline, err := k.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  k.name + "_pipeline",
		Layout: pipeLayout,
		Compute: hal.ComputeState{
			Module:     k.module,
			EntryPoint: k.name,
		},
	})
	if err != nil {
		k.device.DestroyPipelineLayout(pipeLayout)
		k.device.DestroyBindGroupLayout(bgLayout)
		return errors.Wrapf(err, "creating compute pipeline for %q", k.name)
	}

	k.bgLayout = bgLayout
	k.pipeLayout = pipeLayout
	k.pipeline = pipeline
	k.signature = sig
	return nil
}

func (k *kernel) destroyPipeline() {
	if k.pipeline != nil {
		k.device.DestroyComputePipeline(k.pipeline)
		k.pipeline = nil
	}
	if k.pipeLayout != nil {
		k.device.DestroyPipelineLayout(k.pipeLayout)
		k.pipeLayout = nil
	}
	if k.bgLayout != nil {
		k.device.DestroyBindGroupLayout(k.bgLayout)
		k.bgLayout = nil
	}
}
