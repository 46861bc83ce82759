package compute

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// HeadlessDefine is prepended to every program compiled on a context without
// an attached rendering surface, so kernel source can select its headless
// code path at preprocessing time.
const HeadlessDefine = "#define FORCEGL_NOSURFACE 1\n"

// Program owns the mapping from kernel name to compiled entry point.
// Kernels are immutable once compiled; only their bound arguments change.
type Program struct {
	kernels map[string]*Kernel
}

// Kernels returns the name to kernel mapping.
func (p *Program) Kernels() map[string]*Kernel { return p.kernels }

// Kernel returns the named kernel.
func (p *Program) Kernel(name string) (*Kernel, error) {
	k, ok := p.kernels[name]
	if !ok {
		return nil, errors.Errorf("program has no kernel %q", name)
	}
	return k, nil
}

// CompileKernels compiles source against the context's device and resolves
// every requested kernel name. If any name cannot be resolved the whole
// compilation fails with a CompileError carrying the full program source.
func (c *Context) CompileKernels(source string, names []string) (*Program, error) {
	if err := c.checkValid(); err != nil {
		return nil, err
	}
	if c.surface == nil {
		source = HeadlessDefine + source
	}
	prog, err := c.dctx.Compile(source)
	if err != nil {
		return nil, &CompileError{Source: source, Err: err}
	}
	kernels := make(map[string]*Kernel, len(names))
	for _, name := range names {
		handle, err := prog.Kernel(name)
		if err != nil {
			prog.Finalize()
			return nil, &CompileError{Source: source, Err: errors.Wrapf(err, "kernel %q", name)}
		}
		kernels[name] = &Kernel{name: name, ctx: c, handle: handle}
	}
	klog.V(2).Infof("context %s: compiled %d kernels", c.ID, len(kernels))
	return &Program{kernels: kernels}, nil
}

// CompileKernel compiles source and resolves a single kernel. Both this and
// CompileKernels are first-class: call sites need both shapes.
func (c *Context) CompileKernel(source, name string) (*Kernel, error) {
	prog, err := c.CompileKernels(source, []string{name})
	if err != nil {
		return nil, err
	}
	return prog.kernels[name], nil
}
