package loader

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PageSize is the demand-paging unit, matching the reference loader's
// hard-coded 4 KiB page.
const PageSize = 4096

// MaxMappedPages bounds the mapped-page set, matching the reference
// loader's fixed-size table.
const MaxMappedPages = 1024

// ErrTooManyPages is returned if a run would need more distinct pages than
// MaxMappedPages can track.
var ErrTooManyPages = errors.New("too many mapped pages")

// ErrUnmappedFault is returned when a faulting address falls outside every
// loadable segment.
var ErrUnmappedFault = errors.New("segmentation fault")

// ErrMapFailed is returned when the fixed anonymous mapping a fault
// handler needs cannot be made.
var ErrMapFailed = errors.New("page map failed")

// Stats accumulates the three counters the loader report prints.
type Stats struct {
	PageFaults            int
	PageAllocations       int
	InternalFragmentBytes uint64
}

// FragmentationKB returns the fragmentation accumulator in kilobytes, the
// unit the loader report prints it in (with two fractional digits, see
// PrintReport).
func (s Stats) FragmentationKB() float64 {
	return float64(s.InternalFragmentBytes) / 1024.0
}

// pager owns the mapped-page set and statistics for one loader run. A
// single PROT_NONE placeholder mapping (base) reserves a contiguous span
// of address space up front; individual pages are then installed inside
// it with mmap's MAP_FIXED flag, at a small, pure-Go-safe scale instead of
// mapping at the image's literal (and likely already occupied) virtual
// addresses.
type pager struct {
	img      *Image
	base     []byte
	baseAddr uintptr
	mapped   map[uint32]bool
	stats    Stats
}

// newPager reserves a placeholder region large enough to cover every
// loadable segment's virtual address range.
func newPager(img *Image) (*pager, error) {
	var maxEnd uint32
	for _, s := range img.Segments {
		if e := s.end(); e > maxEnd {
			maxEnd = e
		}
	}
	span := int(alignUp(maxEnd, PageSize))
	if span == 0 {
		span = PageSize
	}

	base, err := unix.Mmap(-1, 0, span, unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("%w: reserving address space: %v", ErrMapFailed, err)
	}

	return &pager{
		img:      img,
		base:     base,
		baseAddr: uintptr(unsafe.Pointer(&base[0])), //nolint:gosec // stable: base is an mmap'd region, not moved by the GC
		mapped:   make(map[uint32]bool),
	}, nil
}

func alignDown(addr, size uint32) uint32 {
	return (addr / size) * size
}

func alignUp(addr, size uint32) uint32 {
	return alignDown(addr+size-1, size)
}

// ptrAt returns the process address backing the given segment-relative
// virtual address.
func (p *pager) ptrAt(addr uint32) unsafe.Pointer {
	return unsafe.Pointer(p.baseAddr + uintptr(addr)) //nolint:gosec // addr is always within the reserved span
}

// bytesAt returns a slice over the reserved region starting at addr, for
// reading file content into a freshly mapped page.
func (p *pager) bytesAt(addr uint32, n int) []byte {
	return unsafe.Slice((*byte)(p.ptrAt(addr)), n)
}

// mapFixed installs PageSize bytes of anonymous RWX memory at the given
// address within the reserved region, via the raw mmap syscall so that
// MAP_FIXED can target an address the high-level unix.Mmap wrapper does
// not expose.
func (p *pager) mapFixed(addr uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_MMAP,
		p.baseAddr+uintptr(addr), //nolint:gosec // addr is always within the reserved span
		uintptr(PageSize),
		uintptr(unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC),
		uintptr(unix.MAP_FIXED|unix.MAP_PRIVATE|unix.MAP_ANONYMOUS),
		^uintptr(0), // fd -1
		0)
	if errno != 0 {
		return fmt.Errorf("%w: %v", ErrMapFailed, errno)
	}
	return nil
}

// handleFault resolves one faulting address: count the fault, locate its
// segment, map the containing page if it isn't already, fill it from the
// backing file up to the end of the segment's file content (bytes up to
// the segment's memory end stay zero), and account any trailing
// fragmentation between the segment's end and the page boundary. It runs
// from the recover() path triggered by a real SIGSEGV that
// debug.SetPanicOnFault turned into a runtime.Error (see vm.go); the
// "hardware" here is the Go runtime's own fault-to-panic translation, not
// a hand-installed sigaction handler.
func (p *pager) handleFault(addr uint32) error {
	p.stats.PageFaults++

	seg, ok := p.img.segmentFor(addr)
	if !ok {
		fmt.Fprintln(os.Stderr, "Segmentation fault (core dumped)") //nolint:errcheck
		return ErrUnmappedFault
	}

	pageBase := alignDown(addr, PageSize)
	if p.mapped[pageBase] {
		return nil // spurious duplicate fault
	}
	if len(p.mapped) >= MaxMappedPages {
		return ErrTooManyPages
	}

	if err := p.mapFixed(pageBase); err != nil {
		return err
	}
	p.stats.PageAllocations++
	p.mapped[pageBase] = true

	pageEnd := pageBase + PageSize
	segEnd := seg.end()
	fileEnd := seg.Vaddr + seg.Filesz // bytes past this are BSS: not present in the file, left zero
	readUntil := min(pageEnd, segEnd, fileEnd)
	if pageBase < readUntil {
		needed := readUntil - pageBase
		fileOffset := seg.Offset + (pageBase - seg.Vaddr)
		if err := p.img.readAt(fileOffset, p.bytesAt(pageBase, int(needed))); err != nil {
			return err
		}
	}

	if pageEnd > segEnd && pageBase < segEnd {
		p.stats.InternalFragmentBytes += uint64(pageEnd - segEnd)
	}

	return nil
}

// release unmaps the reserved placeholder (which also covers every page
// installed inside it) and is idempotent.
func (p *pager) release() {
	if p.base != nil {
		unix.Munmap(p.base) //nolint:errcheck
		p.base = nil
		p.baseAddr = 0
	}
	p.mapped = nil
}
