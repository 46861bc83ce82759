package compute

import (
	"sync"

	"k8s.io/klog/v2"
)

// Launch is the asynchronous completion signal of one kernel invocation.
// It resolves exactly once, with either the kernel handle (for chaining) or
// an error, never both and never neither.
type Launch struct {
	done   chan struct{}
	once   sync.Once
	kernel *Kernel
	err    error
}

func newLaunch() *Launch {
	return &Launch{done: make(chan struct{})}
}

func (l *Launch) resolve(k *Kernel, err error) {
	l.once.Do(func() {
		l.kernel = k
		l.err = err
		close(l.done)
	})
}

// Done is closed once the launch resolved.
func (l *Launch) Done() <-chan struct{} { return l.done }

// Wait blocks until the launch resolved and returns its outcome.
func (l *Launch) Wait() (*Kernel, error) {
	<-l.done
	return l.kernel, l.err
}

// Invoke enqueues the kernel with a one-dimensional work size of threads
// parallel invocations, against the listed buffers.
//
// The buffers are acquired in the given order (a single queue exists, so no
// reordering is needed to avoid deadlock), the kernel is enqueued, and the
// buffers are released. Errors during acquisition abort before the enqueue;
// errors during the enqueue still release every acquired buffer before the
// launch resolves, so an acquisition is never leaked on the failure path.
func (k *Kernel) Invoke(threads int, buffers ...*Buffer) *Launch {
	l := newLaunch()
	go k.run(l, threads, buffers)
	return l
}

func (k *Kernel) run(l *Launch, threads int, buffers []*Buffer) {
	c := k.ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkValid(); err != nil {
		l.resolve(nil, &LaunchError{Kernel: k.name, Err: err})
		return
	}

	acquired := make([]*Buffer, 0, len(buffers))
	for _, b := range buffers {
		if err := b.Acquire(); err != nil {
			if rerr := releaseAll(acquired); rerr != nil {
				klog.Warningf("releasing buffers after failed acquire for kernel %q: %v", k.name, rerr)
			}
			l.resolve(nil, &LaunchError{Kernel: k.name, Err: err})
			return
		}
		acquired = append(acquired, b)
	}

	runErr := c.queue.Run(k.handle, threads)
	relErr := releaseAll(acquired)

	switch {
	case runErr != nil:
		l.resolve(nil, &LaunchError{Kernel: k.name, Err: runErr})
	case relErr != nil:
		l.resolve(nil, &LaunchError{Kernel: k.name, Err: relErr})
	default:
		klog.V(2).Infof("context %s: kernel %q ran over %d threads", c.ID, k.name, threads)
		l.resolve(k, nil)
	}
}

// releaseAll releases the buffers in the given order, returning the first
// error while still attempting every release.
func releaseAll(buffers []*Buffer) error {
	var first error
	for _, b := range buffers {
		if err := b.Release(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
