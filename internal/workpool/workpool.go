// Package workpool bounds the parallelism of CPU-side kernel execution.
//
// The pool does not own goroutines: each submitted chunk runs in its own
// goroutine, and the pool only gates how many run at once. The soft cap
// keeps work-item chunks from oversubscribing the host while launches and
// blocking transfers wait on the same machine.
package workpool

import (
	"runtime"
	"sync"
)

// Pool gates concurrently running chunk tasks to a soft parallelism target.
type Pool struct {
	// parallelism is the soft cap. Zero disables parallel execution,
	// negative means unlimited.
	parallelism int

	mu      sync.Mutex
	cond    sync.Cond // signaled whenever running decreases
	running int
}

// New returns a Pool capped at runtime.NumCPU().
func New() *Pool {
	p := &Pool{parallelism: runtime.NumCPU()}
	p.cond = sync.Cond{L: &p.mu}
	return p
}

// IsEnabled reports whether parallel execution is enabled.
func (p *Pool) IsEnabled() bool { return p.parallelism != 0 }

// Parallelism returns the soft cap on concurrent chunks. For an unlimited
// pool it reports runtime.NumCPU(), as a chunking hint.
func (p *Pool) Parallelism() int {
	if p.parallelism < 0 {
		return runtime.NumCPU()
	}
	return p.parallelism
}

// SetParallelism changes the soft cap: zero disables parallelism, negative
// lifts the limit. Only change it while no chunks are running.
func (p *Pool) SetParallelism(parallelism int) {
	p.parallelism = parallelism
}

// goroutineRatio allows more goroutines than the cap, so chunks blocked on
// memory stalls do not starve the pool.
const goroutineRatio = 2

func (p *Pool) lockedIsFull() bool {
	if p.parallelism == 0 {
		return true
	}
	if p.parallelism < 0 {
		return false
	}
	return p.running >= goroutineRatio*p.parallelism
}

// Go runs task in its own goroutine, blocking the caller until the pool has
// a free slot. With parallelism disabled the task runs inline instead.
func (p *Pool) Go(task func()) {
	if p.parallelism < 0 {
		go task()
		return
	}
	if p.parallelism == 0 {
		task()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.lockedIsFull() {
		p.cond.Wait()
	}
	p.running++
	go func() {
		task()
		p.mu.Lock()
		p.running--
		p.cond.Signal()
		p.mu.Unlock()
	}()
}
