package compute

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const forceSource = `
__kernel void repulse(__global float *pos, __global float *force, const int n) {
    int gid = get_global_id(0);
    if (gid >= n) return;
    force[gid] = -pos[gid];
}

__kernel void integrate(__global float *pos, __global float *force, const float dt) {
    int gid = get_global_id(0);
    pos[gid] += force[gid] * dt;
}
`

func TestCompileKernels(t *testing.T) {
	ctx, dctx := newTestContext(t, nil)

	prog, err := ctx.CompileKernels(forceSource, []string{"repulse", "integrate"})
	require.NoError(t, err)
	require.Len(t, prog.Kernels(), 2)

	k, err := prog.Kernel("repulse")
	require.NoError(t, err)
	require.Equal(t, "repulse", k.Name())
	_, err = prog.Kernel("unknown")
	require.Error(t, err)

	// No rendering surface: the headless define is prepended to the source
	// handed to the driver.
	require.Len(t, dctx.compiled, 1)
	require.True(t, strings.HasPrefix(dctx.compiled[0], HeadlessDefine))
}

func TestCompileWithSurfaceSkipsHeadlessDefine(t *testing.T) {
	surface := &fakeSurface{sharing: true}
	ctx, dctx := newTestContext(t, surface)

	_, err := ctx.CompileKernel(forceSource, "repulse")
	require.NoError(t, err)
	require.Len(t, dctx.compiled, 1)
	require.False(t, strings.Contains(dctx.compiled[0], HeadlessDefine))
}

func TestCompileErrorCarriesSource(t *testing.T) {
	ctx, dctx := newTestContext(t, nil)
	dctx.compileErr = errors.New("parse error near line 3")

	_, err := ctx.CompileKernel(forceSource, "repulse")
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	require.Contains(t, cerr.Source, "repulse")
	require.Contains(t, err.Error(), "--- program source ---",
		"the failing source must be dumped for offline diagnosis")
}

func TestCompileUnresolvableKernelFinalizesProgram(t *testing.T) {
	ctx, dctx := newTestContext(t, nil)
	dctx.kernelNames = map[string]bool{"repulse": true}

	_, err := ctx.CompileKernels(forceSource, []string{"repulse", "missing"})
	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	require.ErrorContains(t, err, `"missing"`)
	require.Len(t, dctx.programs, 1)
	require.True(t, dctx.programs[0].finalized,
		"a partially resolved program must not leak")
}
