package compute

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

var (
	errTestRelease = errors.New("injected release failure")
	errTestAlloc   = errors.New("injected allocation failure")
)

func TestBufferWriteReadRoundTrip(t *testing.T) {
	ctx, _ := newTestContext(t, nil)

	buf, err := ctx.NewBuffer(8, "positions")
	require.NoError(t, err)
	require.Equal(t, "positions", buf.Name())
	require.Equal(t, 8, buf.Size())
	require.False(t, buf.Shared())

	require.NoError(t, buf.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8}))

	dst := make([]byte, 8)
	require.NoError(t, buf.Read(dst))
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, dst)

	// A larger destination only receives the buffer's bytes; the remainder
	// stays untouched.
	large := []byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9}
	require.NoError(t, buf.Read(large))
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 9}, large)

	// A shorter destination receives a prefix.
	short := make([]byte, 4)
	require.NoError(t, buf.Read(short))
	require.Equal(t, []byte{1, 2, 3, 4}, short)
}

func TestBufferAcquireReleaseAlternation(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	buf, err := ctx.NewBuffer(4, "flags")
	require.NoError(t, err)

	require.NoError(t, buf.Acquire())
	require.True(t, buf.Acquired())
	require.Error(t, buf.Acquire(), "double acquire must fail")
	require.NoError(t, buf.Release())
	require.False(t, buf.Acquired())
	require.Error(t, buf.Release(), "release without acquire must fail")
}

func TestSharedBufferAliasesRendererMemory(t *testing.T) {
	renderer := []byte{1, 1, 1, 1}
	surface := &fakeSurface{
		sharing: true,
		bufs:    map[string]*fakeSurfaceBuffer{"pos": {name: "pos", data: renderer}},
	}
	ctx, dctx := newTestContext(t, surface)
	require.True(t, ctx.Sharing())

	handle, err := surface.Buffer("pos")
	require.NoError(t, err)
	buf, err := ctx.NewSharedBuffer(handle, "pos")
	require.NoError(t, err)
	require.True(t, buf.Shared())

	flushesBefore := surface.flushes
	require.NoError(t, buf.Write([]byte{7, 8, 9, 10}))
	require.Equal(t, []byte{7, 8, 9, 10}, renderer,
		"writes must be visible through the renderer's slice")

	// One acquisition window: flush before acquire, release, drain, flush.
	require.Equal(t, flushesBefore+2, surface.flushes)
	require.Equal(t, dctx.q.acquires, dctx.q.releases)
	require.Equal(t, 1, dctx.q.acquires)
}

func TestSharedBufferFallbackCopiesInitialData(t *testing.T) {
	// No surface on the context: the shared buffer degrades to a plain
	// buffer seeded with the renderer data, and later writes never reach
	// the renderer's slice.
	renderer := []byte{5, 6, 7, 8}
	ctx, _ := newTestContext(t, nil)

	buf, err := ctx.NewSharedBuffer(&fakeSurfaceBuffer{name: "pos", data: renderer}, "pos")
	require.NoError(t, err)
	require.False(t, buf.Shared())

	dst := make([]byte, 4)
	require.NoError(t, buf.Read(dst))
	require.Equal(t, []byte{5, 6, 7, 8}, dst, "initial data copied once")

	require.NoError(t, buf.Write([]byte{0, 0, 0, 0}))
	require.Equal(t, []byte{5, 6, 7, 8}, renderer, "renderer memory must stay untouched")
}

func TestSharedBufferReleaseErrorClearsAcquisition(t *testing.T) {
	surface := &fakeSurface{
		sharing: true,
		bufs:    map[string]*fakeSurfaceBuffer{"pos": {name: "pos", data: make([]byte, 4)}},
	}
	ctx, dctx := newTestContext(t, surface)
	handle, err := surface.Buffer("pos")
	require.NoError(t, err)
	buf, err := ctx.NewSharedBuffer(handle, "pos")
	require.NoError(t, err)

	require.NoError(t, buf.Acquire())
	dctx.q.releaseErr = errTestRelease
	require.Error(t, buf.Release())
	require.False(t, buf.Acquired(),
		"a failed release must still leave the buffer releasable, not wedged")
	dctx.q.releaseErr = nil
	require.NoError(t, buf.Acquire())
	require.NoError(t, buf.Release())
}

func TestCopyIntoUsesSmallerSize(t *testing.T) {
	ctx, _ := newTestContext(t, nil)

	src, err := ctx.NewBuffer(4, "src")
	require.NoError(t, err)
	require.NoError(t, src.Write([]byte{1, 2, 3, 4}))

	dst, err := ctx.NewBuffer(8, "dst")
	require.NoError(t, err)
	require.NoError(t, dst.Write([]byte{9, 9, 9, 9, 9, 9, 9, 9}))

	require.NoError(t, src.CopyInto(dst))
	out := make([]byte, 8)
	require.NoError(t, dst.Read(out))
	require.Equal(t, []byte{1, 2, 3, 4, 9, 9, 9, 9}, out,
		"bytes past the smaller size must stay untouched")

	require.False(t, src.Acquired())
	require.False(t, dst.Acquired())
}

func TestDispose(t *testing.T) {
	ctx, _ := newTestContext(t, nil)
	buf, err := ctx.NewBuffer(4, "doomed")
	require.NoError(t, err)

	require.NoError(t, buf.Dispose())
	require.Equal(t, 0, buf.Size())
	require.NoError(t, buf.Dispose(), "second dispose is a no-op")

	require.ErrorIs(t, buf.Acquire(), ErrUseAfterFree)
	require.ErrorIs(t, buf.Write([]byte{1}), ErrUseAfterFree)
	require.ErrorIs(t, buf.Read(make([]byte, 1)), ErrUseAfterFree)
}

func TestDisposeReleasesAcquiredBuffer(t *testing.T) {
	surface := &fakeSurface{
		sharing: true,
		bufs:    map[string]*fakeSurfaceBuffer{"pos": {name: "pos", data: make([]byte, 4)}},
	}
	ctx, dctx := newTestContext(t, surface)
	handle, err := surface.Buffer("pos")
	require.NoError(t, err)
	buf, err := ctx.NewSharedBuffer(handle, "pos")
	require.NoError(t, err)

	require.NoError(t, buf.Acquire())
	require.NoError(t, buf.Dispose())
	require.Equal(t, dctx.q.acquires, dctx.q.releases,
		"dispose must close the open acquisition window")
}

func TestAllocationFailure(t *testing.T) {
	ctx, dctx := newTestContext(t, nil)
	dctx.allocErr = errTestAlloc

	_, err := ctx.NewBuffer(1<<40, "huge")
	var aerr *AllocationError
	require.ErrorAs(t, err, &aerr)
	require.Equal(t, "huge", aerr.Name)
	require.Equal(t, 1<<40, aerr.Size)
}
