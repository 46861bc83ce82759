package compute

import (
	"reflect"

	"github.com/pkg/errors"

	"github.com/forcegl/forcegl/drivers"
)

// Arg is one positional kernel argument: a value plus an optional advisory
// type hint. Hints exist only to support older compute-API variants that
// cannot infer argument types from the compiled signature; modern drivers
// ignore them.
//
// A nil Value skips the position, leaving it unbound for this call.
// An array-like Value binds its first element; this reproduces a legacy
// call-site convention and is deliberately not a general unwrap.
type Arg struct {
	Value any
	Hint  drivers.ArgHint
}

// Kernel wraps a compiled entry point plus its currently bound argument
// list. Kernels are immutable once compiled; only the bound arguments are
// mutable, rebindable before each invocation.
type Kernel struct {
	name   string
	ctx    *Context
	handle drivers.Kernel
	args   []Arg
}

// Name returns the kernel's declared name.
func (k *Kernel) Name() string { return k.name }

// SetArgs binds the positional arguments for the next invocation. On
// failure the returned ArgBindError carries the kernel name, the argument
// position, and the triggering error.
func (k *Kernel) SetArgs(args ...Arg) error {
	if err := k.ctx.checkValid(); err != nil {
		return &ArgBindError{Kernel: k.name, Index: -1, Err: err}
	}
	for i, a := range args {
		if a.Value == nil {
			continue
		}
		v, err := unwrapArg(a.Value)
		if err != nil {
			return &ArgBindError{Kernel: k.name, Index: i, Err: err}
		}
		if buf, ok := v.(*Buffer); ok {
			if buf.disposed {
				return &ArgBindError{Kernel: k.name, Index: i, Err: ErrUseAfterFree}
			}
			v = buf.mem
		}
		if err := k.handle.SetArg(i, drivers.ArgValue{Value: v, Hint: a.Hint}); err != nil {
			return &ArgBindError{Kernel: k.name, Index: i, Err: err}
		}
	}
	k.args = args
	return nil
}

// unwrapArg applies the legacy array-like rule: slices and arrays bind
// their first element. Everything else binds as-is.
func unwrapArg(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return nil, errors.New("empty array-like argument has no first element to bind")
		}
		return rv.Index(0).Interface(), nil
	default:
		return v, nil
	}
}
