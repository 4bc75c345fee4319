package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"runtime/debug"
	"unsafe"
)

// Op is one virtual-ISA instruction. Segment bytes are interpreted eight at
// a time as (Op, operand) pairs, standing in for the native ELF32 machine
// code a real loader would call into directly — out of reach for pure Go
// without cgo or assembly. The instruction set is deliberately tiny: it
// exists only to give test images a deterministic entry sequence that can
// span several pages.
type Op uint32

// Virtual-ISA opcodes. Each instruction is 8 bytes: a 4-byte Op followed
// by a 4-byte little-endian operand.
const (
	// OpLoad sets the accumulator to the operand.
	OpLoad Op = iota
	// OpAdd adds the operand to the accumulator.
	OpAdd
	// OpJump sets the program counter to the operand (an absolute
	// segment-relative address).
	OpJump
	// OpHalt stops execution; the accumulator becomes the return value.
	OpHalt
)

const instrSize = 8

// ErrBadInstruction is returned when the fetch loop decodes an opcode
// outside the virtual ISA.
var ErrBadInstruction = errors.New("bad instruction")

// ErrFault wraps a page fault the handler could not resolve (no owning
// segment, or an mmap failure) so Run's caller can tell a program bug
// (bad entry address) from an infrastructure failure (map failed).
type ErrFault struct {
	Addr uint32
	Err  error
}

func (e *ErrFault) Error() string {
	return fmt.Sprintf("fault at 0x%x: %v", e.Addr, e.Err)
}

func (e *ErrFault) Unwrap() error { return e.Err }

// run executes the virtual ISA starting at entry, reading instruction
// words through p's reserved, demand-paged region. Every read goes
// through unsafe.Pointer so that touching an unmapped page raises a real
// SIGSEGV; debug.SetPanicOnFault converts that into a recoverable
// runtime.Error satisfying faultAddr, which is handled by p.handleFault
// and the faulting read retried — the same "hardware retries the
// instruction" behavior a real page-fault handler relies on.
func run(p *pager, entry uint32) (result int32, err error) {
	prev := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(prev)

	pc := entry
	var acc int32

	for {
		var word [instrSize]byte
		if err := readFaulting(p, pc, word[:]); err != nil {
			return 0, err
		}
		op := Op(binary.LittleEndian.Uint32(word[0:4]))
		operand := int32(binary.LittleEndian.Uint32(word[4:8])) //nolint:gosec // intentional reinterpretation

		switch op {
		case OpLoad:
			acc = operand
			pc += instrSize
		case OpAdd:
			acc += operand
			pc += instrSize
		case OpJump:
			pc = uint32(operand) //nolint:gosec // operand is a segment-relative address by convention
		case OpHalt:
			return acc, nil
		default:
			return 0, fmt.Errorf("%w: opcode %d at 0x%x", ErrBadInstruction, op, pc)
		}
	}
}

// faultAddr is satisfied by the runtime.Error debug.SetPanicOnFault
// produces on a genuine hardware fault.
type faultAddr interface {
	Addr() uintptr
}

// readFaulting copies n bytes starting at addr out of p's region into dst,
// retrying through the fault handler whenever the read panics on an
// unmapped page. This is the trampoline's only point of contact with
// demand paging: every other instruction-set concern lives in run above.
func readFaulting(p *pager, addr uint32, dst []byte) (err error) {
	if _, ok := p.img.segmentFor(addr); !ok {
		// No loadable segment owns addr, so it may lie outside the reserved
		// span: reject it through the fault handler without touching it.
		return &ErrFault{Addr: addr, Err: p.handleFault(addr)}
	}
	for {
		if faulted := attemptRead(p, addr, dst); faulted == nil {
			return nil
		} else if err := p.handleFault(*faulted); err != nil {
			return &ErrFault{Addr: *faulted, Err: err}
		}
	}
}

// attemptRead performs one read attempt, returning the faulting address
// (non-nil) if the read panicked on an unmapped page, or nil on success.
// Any other panic is a genuine bug and is re-raised.
func attemptRead(p *pager, addr uint32, dst []byte) (faultedAt *uint32) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		fe, ok := r.(faultAddr)
		if !ok {
			panic(r)
		}
		off := uint32(fe.Addr() - p.baseAddr) //nolint:gosec // fault addresses inside our region fit uint32
		faultedAt = &off
	}()

	src := unsafe.Slice((*byte)(p.ptrAt(addr)), len(dst))
	copy(dst, src)
	return nil
}
