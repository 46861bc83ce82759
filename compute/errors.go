package compute

import (
	"fmt"

	"github.com/pkg/errors"
)

// Enumeration and lifecycle sentinels. Callers distinguish them with
// errors.Is.
var (
	// ErrNoPlatform means the driver reported no compute platform at all.
	ErrNoPlatform = errors.New("no compute platform available")

	// ErrNoDevice means the first platform holds no device matching the
	// requested class filter.
	ErrNoDevice = errors.New("no compute device matches the requested class")

	// ErrUseAfterFree means an operation touched a disposed buffer.
	ErrUseAfterFree = errors.New("buffer used after dispose")
)

// ContextCreationError reports that every ranked candidate device was
// rejected during context creation. Err carries the last observed driver
// error, or a summary error when all candidates were skipped without one.
type ContextCreationError struct {
	Err error
}

func (e *ContextCreationError) Error() string {
	return fmt.Sprintf("compute context creation failed: %v", e.Err)
}

func (e *ContextCreationError) Unwrap() error { return e.Err }

// CompileError reports a failed kernel-program compilation. Source holds the
// full text handed to the driver (including any prepended definitions) so
// the failing program can be diagnosed offline.
type CompileError struct {
	Source string
	Err    error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("kernel compilation failed: %v\n--- program source ---\n%s", e.Err, e.Source)
}

func (e *CompileError) Unwrap() error { return e.Err }

// AllocationError reports a failed buffer allocation or surface binding.
type AllocationError struct {
	Name string
	Size int
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocation of buffer %q (%d bytes) failed: %v", e.Name, e.Size, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// LaunchError reports a failed kernel invocation, at acquisition, enqueue,
// or release time.
type LaunchError struct {
	Kernel string
	Err    error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch of kernel %q failed: %v", e.Kernel, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// ArgBindError reports a failed argument binding, carrying the kernel's
// declared name and the triggering position.
type ArgBindError struct {
	Kernel string
	Index  int
	Err    error
}

func (e *ArgBindError) Error() string {
	return fmt.Sprintf("binding argument %d of kernel %q failed: %v", e.Index, e.Kernel, e.Err)
}

func (e *ArgBindError) Unwrap() error { return e.Err }
