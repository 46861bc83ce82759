package headless

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/forcegl/forcegl/drivers"
	"github.com/gomlx/exceptions"
)

type context struct {
	driver  *Driver
	surface drivers.Surface
}

var _ drivers.Context = (*context)(nil)

func (c *context) NewQueue() (drivers.Queue, error) {
	return &queue{driver: c.driver}, nil
}

func (c *context) AllocMem(size int) (drivers.Mem, error) {
	if size < 0 {
		return nil, errors.Errorf("cannot allocate %d bytes", size)
	}
	return &mem{data: make([]byte, size)}, nil
}

// BindSurfaceMem aliases the renderer's buffer bytes directly: writes
// through the returned Mem are immediately visible to the renderer.
func (c *context) BindSurfaceMem(handle drivers.SurfaceBuffer) (drivers.Mem, error) {
	return &mem{data: handle.Bytes(), surface: true}, nil
}

func (c *context) Compile(source string) (drivers.Program, error) {
	return compile(c.driver, source)
}

func (c *context) Finalize() {}

// mem is a device allocation: just Go bytes. A surface-bound mem aliases
// the renderer's slice and must not be released here.
type mem struct {
	data    []byte
	surface bool
}

var _ drivers.Mem = (*mem)(nil)

func (m *mem) Size() int { return len(m.data) }

func (m *mem) Finalize() error {
	if !m.surface {
		m.data = nil
	}
	return nil
}

// castMem panics with an informative message if given a Mem that belongs
// to another driver. It indicates the objects were mixed across drivers,
// which is a bug in the caller.
func castMem(m drivers.Mem) *mem {
	hm, ok := m.(*mem)
	if !ok {
		exceptions.Panicf("headless driver given a buffer of type %T, probably created by a different driver", m)
	}
	return hm
}

type queue struct {
	driver *Driver
}

var _ drivers.Queue = (*queue)(nil)

func (q *queue) Write(m drivers.Mem, data []byte) error {
	hm := castMem(m)
	if len(data) > len(hm.data) {
		return errors.Errorf("write of %d bytes overflows buffer of %d bytes", len(data), len(hm.data))
	}
	copy(hm.data, data)
	return nil
}

func (q *queue) Read(m drivers.Mem, dst []byte) error {
	copy(dst, castMem(m).data)
	return nil
}

func (q *queue) Copy(src, dst drivers.Mem, n int) error {
	hSrc, hDst := castMem(src), castMem(dst)
	if n > len(hSrc.data) || n > len(hDst.data) {
		return errors.Errorf("copy of %d bytes exceeds buffer sizes (src=%d, dst=%d)",
			n, len(hSrc.data), len(hDst.data))
	}
	copy(hDst.data[:n], hSrc.data[:n])
	return nil
}

// AcquireSurfaceMem is a no-op: surface memory is aliased, there is no
// ownership transfer with an in-process renderer.
func (q *queue) AcquireSurfaceMem(m drivers.Mem) error {
	castMem(m)
	return nil
}

func (q *queue) ReleaseSurfaceMem(m drivers.Mem) error {
	castMem(m)
	return nil
}

// Finish is trivially synchronous: every operation completed before
// returning from its call.
func (q *queue) Finish() error { return nil }

// minChunk is the smallest per-chunk work-item count worth a goroutine.
const minChunk = 256

func (q *queue) Run(k drivers.Kernel, global int) error {
	hk, ok := k.(*kernel)
	if !ok {
		exceptions.Panicf("headless driver given a kernel of type %T, probably created by a different driver", k)
	}
	fn := q.driver.kernelFunc(hk.name)
	if fn == nil {
		// No Go implementation registered: the launch completes without
		// touching any buffer.
		return nil
	}
	args := make([]Arg, len(hk.args))
	for i, av := range hk.args {
		if m, ok := av.Value.(*mem); ok {
			args[i] = Arg{Data: m.data}
			continue
		}
		args[i] = Arg{Scalar: av.Value}
	}

	pool := q.driver.pool
	if global <= minChunk || !pool.IsEnabled() {
		for gid := 0; gid < global; gid++ {
			if err := fn(gid, args); err != nil {
				return err
			}
		}
		return nil
	}

	chunk := (global + pool.Parallelism() - 1) / pool.Parallelism()
	if chunk < minChunk {
		chunk = minChunk
	}
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for start := 0; start < global; start += chunk {
		end := min(start+chunk, global)
		wg.Add(1)
		pool.Go(func() {
			defer wg.Done()
			for gid := start; gid < end; gid++ {
				if err := fn(gid, args); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					return
				}
			}
		})
	}
	wg.Wait()
	return firstErr
}
