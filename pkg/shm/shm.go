// Package shm provides the cross-process shared-memory region used by the
// jobspin scheduler to coordinate a front-end process and a scheduler
// process without any kernel-provided locking.
//
// The C original creates the region with mmap(MAP_SHARED|MAP_ANONYMOUS)
// before fork(2), so the mapping is inherited automatically by the child. A
// Go process cannot safely fork its own multi-threaded runtime, so this
// package substitutes the idiomatic Go equivalent: an anonymous,
// memfd_create(2)-backed mapping that is shared across a re-exec of the
// binary via inherited file descriptors (see cmd/jobspin).
package shm

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrMapFailed is returned when the shared region cannot be created or mapped.
var ErrMapFailed = errors.New("shared memory map failed")

// Region is a memfd-backed mapping of a SharedState, open in the current
// process. Two Regions backed by the same file descriptor observe the same
// physical pages.
type Region struct {
	file  *os.File
	bytes []byte
	state *SharedState
}

// Create creates a brand-new anonymous shared-memory region sized to hold a
// SharedState, zeroed, and returns it; the backing file descriptor is
// available through File. The caller is expected to pass File to a child process (e.g. via
// exec.Cmd.ExtraFiles) so that child can call Open on the inherited fd.
func Create() (*Region, error) {
	size := int(unsafe.Sizeof(SharedState{}))
	fd, err := unix.MemfdCreate("jobspin-sharedstate", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: memfd_create: %w", ErrMapFailed, err)
	}
	file := os.NewFile(uintptr(fd), "jobspin-sharedstate")
	if err := file.Truncate(int64(size)); err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: ftruncate: %w", ErrMapFailed, err)
	}
	return mapFile(file, size)
}

// Open maps a SharedState out of an already-open file descriptor, typically
// one inherited from the parent process via exec.Cmd.ExtraFiles. fd is the
// OS-level file descriptor number in the current process (for the first
// entry of ExtraFiles, that is 3).
func Open(fd uintptr) (*Region, error) {
	size := int(unsafe.Sizeof(SharedState{}))
	file := os.NewFile(fd, "jobspin-sharedstate")
	return mapFile(file, size)
}

func mapFile(file *os.File, size int) (*Region, error) {
	b, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: mmap: %w", ErrMapFailed, err)
	}
	return &Region{
		file:  file,
		bytes: b,
		state: (*SharedState)(unsafe.Pointer(&b[0])), //nolint:gosec // documented mmap-struct-overlay idiom, see package doc
	}, nil
}

// File returns the backing file descriptor, for passing to a child process.
func (r *Region) File() *os.File {
	return r.file
}

// State returns the shared record mapped into this process' address space.
// Both the front-end and the scheduler process obtain a *SharedState this
// way; all mutation discipline (who may write which field) is enforced by
// convention, not by the type system, exactly as in the original design.
func (r *Region) State() *SharedState {
	return r.state
}

// Close unmaps the region and closes the backing file descriptor. It is
// idempotent.
func (r *Region) Close() error {
	if r.bytes == nil {
		return nil
	}
	err := unix.Munmap(r.bytes)
	r.bytes = nil
	r.state = nil
	if cerr := r.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
