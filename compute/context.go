package compute

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/forcegl/forcegl/drivers"
)

// Context is a live binding to one chosen device, owning the session's
// single command queue. Programs and buffers borrow the context and become
// invalid once it is finalized. A context carries no package-level state, so
// independent sessions can coexist in one process.
type Context struct {
	// Device is the descriptor of the selected device.
	Device *Device

	// ID is a short random session identifier used in diagnostics.
	ID string

	// MaxWorkGroupSize and ComputeUnits are capability flags of the
	// selected device.
	MaxWorkGroupSize int
	ComputeUnits     int

	dctx    drivers.Context
	queue   drivers.Queue
	surface drivers.Surface

	// mu serializes submission into the single queue, so a blocking
	// transfer and an asynchronous invocation can never interleave inside
	// an acquire/release window.
	mu sync.Mutex

	finalized bool
}

// NewContext builds a context around the best usable device of the ranked
// candidate list, as produced by Enumerate.
//
// Candidates are tried in order. When a surface is supplied, devices without
// surface-sharing support are skipped silently; the first device for which
// both the driver context and the command queue succeed wins, and remaining
// candidates are not tried. If every candidate errors, the last observed
// error is wrapped in a ContextCreationError.
func NewContext(devices []*Device, surface drivers.Surface) (*Context, error) {
	if len(devices) == 0 {
		return nil, &ContextCreationError{Err: ErrNoDevice}
	}
	if surface != nil && !surface.SupportsSharing() {
		// The renderer cannot hand over buffer ownership at all: shared
		// buffers will fall back to copied plain buffers.
		klog.Warningf("rendering surface does not support memory sharing; continuing with copied buffers")
		surface = nil
	}
	var lastErr error
	for _, dev := range devices {
		if surface != nil && !dev.SharingSupported {
			klog.V(1).Infof("skipping %s: no surface-sharing support", dev)
			continue
		}
		dctx, err := dev.handle.NewContext(surface)
		if err != nil {
			klog.V(1).Infof("context creation on %s failed: %v", dev, err)
			lastErr = err
			continue
		}
		queue, err := dctx.NewQueue()
		if err != nil {
			klog.V(1).Infof("queue creation on %s failed: %v", dev, err)
			lastErr = err
			dctx.Finalize()
			continue
		}
		info := dev.handle.Info()
		ctx := &Context{
			Device:           dev,
			ID:               uuid.NewString()[:8],
			MaxWorkGroupSize: info.MaxWorkGroupSize,
			ComputeUnits:     info.ComputeUnits,
			dctx:             dctx,
			queue:            queue,
			surface:          surface,
		}
		if dev.Class == drivers.ClassCPU {
			klog.Warningf("compute context %s created on CPU device %q: layout will run, but expect degraded performance", ctx.ID, dev.Name)
		} else {
			klog.V(1).Infof("compute context %s created on %s", ctx.ID, dev)
		}
		return ctx, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate device supports surface sharing")
	}
	return nil, &ContextCreationError{Err: lastErr}
}

// Sharing reports whether the context aliases renderer memory.
func (c *Context) Sharing() bool { return c.surface != nil }

// Finalize drains and releases the context. It is idempotent; all programs
// and buffers scoped to the context become invalid.
func (c *Context) Finalize() {
	if c.finalized {
		return
	}
	if err := c.queue.Finish(); err != nil {
		klog.Warningf("draining queue of context %s during finalize: %v", c.ID, err)
	}
	c.dctx.Finalize()
	c.finalized = true
}

// checkValid returns an error if the context has been finalized.
func (c *Context) checkValid() error {
	if c == nil {
		return errors.New("compute context is nil")
	}
	if c.finalized {
		return errors.Errorf("compute context %s is finalized", c.ID)
	}
	return nil
}
