package wgpu

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/pkg/errors"

	"github.com/forcegl/forcegl/drivers"
	"github.com/gomlx/exceptions"
)

// workgroupSize is the one-dimensional workgroup size every program entry
// point is expected to declare with @workgroup_size. Launch sizes are
// rounded up to a whole number of workgroups; kernels must guard against
// the excess invocations.
const workgroupSize = 64

// fenceTimeout bounds every submit-and-wait on the GPU.
const fenceTimeout = 5 * time.Second

type mem struct {
	device hal.Device
	buf    hal.Buffer
	size   int
}

var _ drivers.Mem = (*mem)(nil)

func (m *mem) Size() int { return m.size }

func (m *mem) Finalize() error {
	if m.buf != nil {
		m.device.DestroyBuffer(m.buf)
		m.buf = nil
	}
	m.size = 0
	return nil
}

func castMem(dmem drivers.Mem) *mem {
	wm, ok := dmem.(*mem)
	if !ok {
		exceptions.Panicf("wgpu driver given a buffer of type %T, probably created by a different driver", dmem)
	}
	return wm
}

type queue struct {
	device hal.Device
	queue  hal.Queue
}

var _ drivers.Queue = (*queue)(nil)

func (q *queue) Write(dmem drivers.Mem, data []byte) error {
	wm := castMem(dmem)
	if len(data) > wm.size {
		return errors.Errorf("write of %d bytes overflows buffer of %d bytes", len(data), wm.size)
	}
	if len(data) > 0 {
		q.queue.WriteBuffer(wm.buf, 0, data)
	}
	return nil
}

// Read copies the buffer into a staging buffer and maps it back. The
// entire buffer is staged; dst receives its prefix.
func (q *queue) Read(dmem drivers.Mem, dst []byte) error {
	wm := castMem(dmem)
	n := min(wm.size, len(dst))
	if n == 0 {
		return nil
	}

	staging, err := q.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "forcegl_staging",
		Size:  uint64(n),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrapf(err, "creating staging buffer")
	}
	defer q.device.DestroyBuffer(staging)

	err = q.submit("forcegl_read", func(encoder hal.CommandEncoder) error {
		encoder.CopyBufferToBuffer(wm.buf, staging, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: uint64(n)},
		})
		return nil
	})
	if err != nil {
		return err
	}
	if err := q.queue.ReadBuffer(staging, 0, dst[:n]); err != nil {
		return errors.Wrapf(err, "reading staging buffer")
	}
	return nil
}

func (q *queue) Copy(src, dst drivers.Mem, n int) error {
	wSrc, wDst := castMem(src), castMem(dst)
	if n > wSrc.size || n > wDst.size {
		return errors.Errorf("copy of %d bytes exceeds buffer sizes (src=%d, dst=%d)",
			n, wSrc.size, wDst.size)
	}
	if n == 0 {
		return nil
	}
	return q.submit("forcegl_copy", func(encoder hal.CommandEncoder) error {
		encoder.CopyBufferToBuffer(wSrc.buf, wDst.buf, []hal.BufferCopy{
			{SrcOffset: 0, DstOffset: 0, Size: uint64(n)},
		})
		return nil
	})
}

func (q *queue) AcquireSurfaceMem(drivers.Mem) error {
	return errors.Errorf("wgpu driver does not support surface-buffer sharing")
}

func (q *queue) ReleaseSurfaceMem(drivers.Mem) error {
	return errors.Errorf("wgpu driver does not support surface-buffer sharing")
}

// Finish is trivial: every submit already waits on its fence.
func (q *queue) Finish() error { return nil }

func (q *queue) Run(dk drivers.Kernel, global int) error {
	wk, ok := dk.(*kernel)
	if !ok {
		exceptions.Panicf("wgpu driver given a kernel of type %T, probably created by a different driver", dk)
	}
	if global <= 0 {
		return errors.Errorf("launch size must be positive, got %d", global)
	}
	if err := wk.ensurePipeline(); err != nil {
		return err
	}

	entries, uniforms, err := q.bindEntries(wk)
	if err != nil {
		return err
	}
	defer func() {
		for _, u := range uniforms {
			q.device.DestroyBuffer(u)
		}
	}()

	bg, err := q.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   wk.name + "_bg",
		Layout:  wk.bgLayout,
		Entries: entries,
	})
	if err != nil {
		return errors.Wrapf(err, "creating bind group for %q", wk.name)
	}
	defer q.device.DestroyBindGroup(bg)

	groups := uint32((global + workgroupSize - 1) / workgroupSize)
	return q.submit(wk.name, func(encoder hal.CommandEncoder) error {
		pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: wk.name})
		pass.SetPipeline(wk.pipeline)
		pass.SetBindGroup(0, bg, nil)
		pass.Dispatch(groups, 1, 1)
		pass.End()
		return nil
	})
}

// bindEntries builds the bind group entries for a launch. Scalar arguments
// are uploaded into small transient uniform buffers, returned for the
// caller to destroy after submission.
func (q *queue) bindEntries(wk *kernel) ([]gputypes.BindGroupEntry, []hal.Buffer, error) {
	entries := make([]gputypes.BindGroupEntry, len(wk.args))
	var uniforms []hal.Buffer
	for i, a := range wk.args {
		if wm, ok := a.Value.(*mem); ok {
			entries[i] = gputypes.BindGroupEntry{
				Binding: uint32(i),
				Resource: gputypes.BufferBinding{
					Buffer: wm.buf.NativeHandle(),
					Offset: 0,
					Size:   0, // entire buffer
				},
			}
			continue
		}
		data, err := scalarBytes(a)
		if err != nil {
			for _, u := range uniforms {
				q.device.DestroyBuffer(u)
			}
			return nil, nil, errors.Wrapf(err, "argument %d of kernel %q", i, wk.name)
		}
		u, err := q.device.CreateBuffer(&hal.BufferDescriptor{
			Label: wk.name + "_uniform",
			Size:  uint64(len(data)),
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			for _, p := range uniforms {
				q.device.DestroyBuffer(p)
			}
			return nil, nil, errors.Wrapf(err, "creating uniform buffer for argument %d of kernel %q", i, wk.name)
		}
		uniforms = append(uniforms, u)
		q.queue.WriteBuffer(u, 0, data)
		entries[i] = gputypes.BindGroupEntry{
			Binding: uint32(i),
			Resource: gputypes.BufferBinding{
				Buffer: u.NativeHandle(),
				Offset: 0,
				Size:   0,
			},
		}
	}
	return entries, uniforms, nil
}

// scalarBytes packs a scalar argument into a 16-byte uniform payload,
// little-endian in the low bytes.
func scalarBytes(a drivers.ArgValue) ([]byte, error) {
	data := make([]byte, 16)
	switch v := a.Value.(type) {
	case int32:
		binary.LittleEndian.PutUint32(data, uint32(v))
	case uint32:
		binary.LittleEndian.PutUint32(data, v)
	case int:
		binary.LittleEndian.PutUint32(data, uint32(v))
	case float32:
		binary.LittleEndian.PutUint32(data, math.Float32bits(v))
	case float64:
		binary.LittleEndian.PutUint64(data, math.Float64bits(v))
	default:
		return nil, errors.Errorf("unsupported scalar type %T", a.Value)
	}
	return data, nil
}

// submit records commands through encode, submits them and waits for the
// fence.
func (q *queue) submit(label string, encode func(hal.CommandEncoder) error) error {
	encoder, err := q.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return errors.Wrapf(err, "creating command encoder")
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return errors.Wrapf(err, "beginning encoding")
	}
	if err := encode(encoder); err != nil {
		encoder.DiscardEncoding()
		return err
	}
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return errors.Wrapf(err, "ending encoding")
	}
	defer q.device.FreeCommandBuffer(cmdBuf)

	fence, err := q.device.CreateFence()
	if err != nil {
		return errors.Wrapf(err, "creating fence")
	}
	defer q.device.DestroyFence(fence)

	if err := q.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return errors.Wrapf(err, "submitting %q", label)
	}
	ok, err := q.device.Wait(fence, 1, fenceTimeout)
	if err != nil {
		return errors.Wrapf(err, "waiting for %q", label)
	}
	if !ok {
		return errors.Errorf("GPU timeout after %v on %q", fenceTimeout, label)
	}
	return nil
}
