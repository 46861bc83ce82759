package compute

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/forcegl/forcegl/drivers"
)

// Buffer is a block of device memory in one of two variants.
//
// A plain buffer is exclusively owned by the compute side; Acquire and
// Release are no-ops, still called in pairs so call sites stay uniform.
//
// A shared buffer is logically owned by the rendering surface and lent to
// the compute side for the duration of an acquisition window. While live it
// is either released (safe for the renderer) or acquired (safe for the
// compute queue), never both and never neither; Acquire and Release must
// alternate strictly. This layer provides no locking beyond the acquire
// flag: callers that invoke two kernels over the same shared buffer
// concurrently must serialize themselves.
type Buffer struct {
	name     string
	size     int
	shared   bool
	acquired bool
	disposed bool

	mem drivers.Mem
	ctx *Context
}

func (b *Buffer) Name() string   { return b.name }
func (b *Buffer) Size() int      { return b.size }
func (b *Buffer) Shared() bool   { return b.shared }
func (b *Buffer) Acquired() bool { return b.acquired }

// NewBuffer allocates a plain buffer of size bytes. The name is only used
// in diagnostics.
func (c *Context) NewBuffer(size int, name string) (*Buffer, error) {
	if err := c.checkValid(); err != nil {
		return nil, err
	}
	mem, err := c.dctx.AllocMem(size)
	if err != nil {
		return nil, &AllocationError{Name: name, Size: size, Err: err}
	}
	klog.V(2).Infof("context %s: allocated buffer %q (%d bytes)", c.ID, name, size)
	return &Buffer{name: name, size: size, mem: mem, ctx: c}, nil
}

// NewSharedBuffer wraps a renderer buffer handle as a shared buffer.
//
// When the context has no rendering surface attached, it falls back to a
// plain buffer of the handle's declared length; if the handle carries
// initial data, the data is written once and the reference dropped, so the
// buffer never retains a pointer into renderer-owned memory.
func (c *Context) NewSharedBuffer(handle drivers.SurfaceBuffer, name string) (*Buffer, error) {
	if err := c.checkValid(); err != nil {
		return nil, err
	}
	if c.surface == nil {
		buf, err := c.NewBuffer(handle.Size(), name)
		if err != nil {
			return nil, err
		}
		if data := handle.Bytes(); data != nil {
			if err := buf.Write(data); err != nil {
				_ = buf.Dispose()
				return nil, err
			}
		}
		return buf, nil
	}
	mem, err := c.dctx.BindSurfaceMem(handle)
	if err != nil {
		return nil, &AllocationError{Name: name, Size: handle.Size(), Err: err}
	}
	klog.V(2).Infof("context %s: bound shared buffer %q (%d bytes)", c.ID, name, mem.Size())
	return &Buffer{name: name, size: mem.Size(), shared: true, mem: mem, ctx: c}, nil
}

// Acquire transfers ownership of the buffer's memory to the compute queue.
// For shared buffers this orders a renderer-side flush before the
// device-side acquire; for plain buffers it only flips the flag.
func (b *Buffer) Acquire() error {
	if b.disposed {
		return errors.Wrapf(ErrUseAfterFree, "acquire of buffer %q", b.name)
	}
	if b.acquired {
		return errors.Errorf("buffer %q acquired twice without release", b.name)
	}
	if b.shared {
		if err := b.ctx.surface.Flush(); err != nil {
			return errors.Wrapf(err, "surface flush before acquiring buffer %q", b.name)
		}
		if err := b.ctx.queue.AcquireSurfaceMem(b.mem); err != nil {
			return errors.Wrapf(err, "acquiring buffer %q", b.name)
		}
	}
	b.acquired = true
	return nil
}

// Release returns ownership to the renderer: device-side release, queue
// drain, renderer-side flush. The acquired flag is cleared even when one of
// the steps fails, so a buffer is never left in an inconsistent acquisition
// state.
func (b *Buffer) Release() error {
	if b.disposed {
		return errors.Wrapf(ErrUseAfterFree, "release of buffer %q", b.name)
	}
	if !b.acquired {
		return errors.Errorf("buffer %q released without acquire", b.name)
	}
	b.acquired = false
	if !b.shared {
		return nil
	}
	if err := b.ctx.queue.ReleaseSurfaceMem(b.mem); err != nil {
		return errors.Wrapf(err, "releasing buffer %q", b.name)
	}
	if err := b.ctx.queue.Finish(); err != nil {
		return errors.Wrapf(err, "draining queue after releasing buffer %q", b.name)
	}
	if err := b.ctx.surface.Flush(); err != nil {
		return errors.Wrapf(err, "surface flush after releasing buffer %q", b.name)
	}
	return nil
}

// Write copies data into the buffer: acquire, blocking copy-in, release.
// It completes only after the release.
func (b *Buffer) Write(data []byte) error {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	if err := b.Acquire(); err != nil {
		return err
	}
	werr := b.ctx.queue.Write(b.mem, data)
	rerr := b.Release()
	if werr != nil {
		return errors.Wrapf(werr, "write to buffer %q", b.name)
	}
	return rerr
}

// Read copies min(buffer size, len(dst)) bytes back to the host. The
// acquire/release pairing is honored even when the copy fails.
func (b *Buffer) Read(dst []byte) error {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	if err := b.Acquire(); err != nil {
		return err
	}
	n := min(b.size, len(dst))
	cerr := b.ctx.queue.Read(b.mem, dst[:n])
	rerr := b.Release()
	if cerr != nil {
		return errors.Wrapf(cerr, "read from buffer %q", b.name)
	}
	return rerr
}

// CopyInto transfers min(size(b), size(dst)) bytes device-to-device into
// dst. Both endpoints are acquired for the duration of the copy and
// released afterwards, on success and failure alike.
func (b *Buffer) CopyInto(dst *Buffer) error {
	b.ctx.mu.Lock()
	defer b.ctx.mu.Unlock()
	if err := b.Acquire(); err != nil {
		return err
	}
	if err := dst.Acquire(); err != nil {
		rerr := b.Release()
		if rerr != nil {
			klog.Warningf("releasing buffer %q after failed acquire of %q: %v", b.name, dst.name, rerr)
		}
		return err
	}
	n := min(b.size, dst.size)
	cerr := b.ctx.queue.Copy(b.mem, dst.mem, n)
	rerr1 := dst.Release()
	rerr2 := b.Release()
	if cerr != nil {
		return errors.Wrapf(cerr, "copy from buffer %q into %q", b.name, dst.name)
	}
	if rerr1 != nil {
		return rerr1
	}
	return rerr2
}

// Dispose releases the buffer if currently acquired, then frees the
// underlying allocation; the size becomes zero. Disposing an already
// disposed buffer is a no-op; any other operation afterwards fails with
// ErrUseAfterFree.
func (b *Buffer) Dispose() error {
	if b.disposed {
		return nil
	}
	if b.acquired {
		if err := b.Release(); err != nil {
			klog.Warningf("releasing buffer %q during dispose: %v", b.name, err)
		}
	}
	err := b.mem.Finalize()
	b.mem = nil
	b.size = 0
	b.disposed = true
	if err != nil {
		return errors.Wrapf(err, "disposing buffer %q", b.name)
	}
	return nil
}
