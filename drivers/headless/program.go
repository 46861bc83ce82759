package headless

import (
	"regexp"

	"github.com/pkg/errors"

	"github.com/forcegl/forcegl/drivers"
)

// kernelDeclRe matches kernel entry point declarations in program source.
var kernelDeclRe = regexp.MustCompile(`__kernel\s+void\s+([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// compile resolves the entry points declared in source. The headless
// driver never executes the source text itself, so compilation is only a
// scan for kernel names; execution runs the Go functions registered with
// RegisterKernel under those names.
func compile(driver *Driver, source string) (drivers.Program, error) {
	matches := kernelDeclRe.FindAllStringSubmatch(source, -1)
	if len(matches) == 0 {
		return nil, errors.Errorf("no __kernel entry points found in program source")
	}
	names := make(map[string]bool, len(matches))
	for _, m := range matches {
		names[m[1]] = true
	}
	return &program{driver: driver, names: names}, nil
}

type program struct {
	driver *Driver
	names  map[string]bool
}

var _ drivers.Program = (*program)(nil)

func (p *program) Kernel(name string) (drivers.Kernel, error) {
	if !p.names[name] {
		return nil, errors.Errorf("kernel %q not declared in program", name)
	}
	return &kernel{driver: p.driver, name: name}, nil
}

func (p *program) Finalize() {
	p.names = nil
}

type kernel struct {
	driver *Driver
	name   string
	args   []drivers.ArgValue
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
