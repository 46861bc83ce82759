// Package compute orchestrates the GPU side of the force-directed layout
// simulator: device enumeration and ranking, context creation (optionally
// sharing memory with a rendering surface), kernel-program compilation,
// argument binding and invocation, and buffer-ownership mediation between
// the compute queue and the renderer.
//
// The typical session is:
//
//	drv, err := drivers.New()
//	devices, err := compute.Enumerate(drv, drivers.ClassAll, nil)
//	ctx, err := compute.NewContext(devices, surface) // surface may be nil
//	kernel, err := ctx.CompileKernel(source, "forceStep")
//	positions, err := ctx.NewBuffer(n*8, "positions")
//	err = kernel.SetArgs(compute.Arg{Value: positions}, compute.Arg{Value: int32(n)})
//	_, err = kernel.Invoke(n, positions).Wait()
//
// Exactly one command queue exists per context and the device executes its
// operations in order, so ordering between buffer acquire, kernel enqueue,
// and buffer release is guaranteed by enqueue order alone. There is no
// cancellation of in-flight device work and no automatic retry: a failed
// operation surfaces its error and the caller decides.
package compute
