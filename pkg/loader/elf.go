package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// MaxSegments bounds the number of PT_LOAD program-header entries a single
// image may declare, matching the reference loader's fixed-size segment
// table.
const MaxSegments = 16

// Sentinel errors surfaced by ELF parsing.
var (
	ErrNotELF          = errors.New("not an ELF file")
	ErrTooManySegments = errors.New("too many loadable segments")
)

// Perm classifies a loadable segment's declared protection bits. The
// reference loader ignores p_flags entirely and always maps RWX (see
// pager.go); Perm exists only so callers and tests can tell code segments
// from data segments without re-deriving it from raw flag bits.
type Perm int

// Segment permission classifications derived from a program header's
// p_flags.
const (
	PermRead Perm = 1 << iota
	PermWrite
	PermExec
)

func permFromFlags(flags uint32) Perm {
	var p Perm
	if flags&uint32(elf.PF_R) != 0 {
		p |= PermRead
	}
	if flags&uint32(elf.PF_W) != 0 {
		p |= PermWrite
	}
	if flags&uint32(elf.PF_X) != 0 {
		p |= PermExec
	}
	return p
}

// Segment is a loadable segment descriptor, copied out of the program
// header table at load time and immutable thereafter.
type Segment struct {
	Vaddr  uint32
	Memsz  uint32
	Offset uint32
	Filesz uint32
	Perm   Perm
}

// end returns the first address past the segment's memory image.
func (s Segment) end() uint32 {
	return s.Vaddr + s.Memsz
}

// contains reports whether addr falls within [Vaddr, Vaddr+Memsz).
func (s Segment) contains(addr uint32) bool {
	return addr >= s.Vaddr && addr < s.end()
}

// Image holds the parsed header and loadable-segment table of one ELF32
// executable, plus the still-open file descriptor demand paging reads
// segment bytes from.
type Image struct {
	file     *os.File
	Entry    uint32
	Segments []Segment
}

// OpenImage opens path, validates the ELF32 magic, and retains every
// PT_LOAD program header. The file is kept open for on-demand segment
// reads; call Close when done.
func OpenImage(path string) (*Image, error) {
	f, err := os.Open(path) //nolint:gosec // G304: path is an explicit CLI argument
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", path, err)
	}

	var hdr elf.Header32
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("cannot read ELF header: %w", err)
	}
	if !bytes.Equal(hdr.Ident[:len(elf.ELFMAG)], []byte(elf.ELFMAG)) {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: bad magic in %q", ErrNotELF, path)
	}

	if _, err := f.Seek(int64(hdr.Phoff), 0); err != nil {
		f.Close() //nolint:errcheck
		return nil, fmt.Errorf("cannot seek to program headers: %w", err)
	}

	segments := make([]Segment, 0, hdr.Phnum)
	for i := uint16(0); i < hdr.Phnum; i++ {
		var phdr elf.Prog32
		if err := binary.Read(f, binary.LittleEndian, &phdr); err != nil {
			f.Close() //nolint:errcheck
			return nil, fmt.Errorf("cannot read program header %d: %w", i, err)
		}
		if elf.ProgType(phdr.Type) != elf.PT_LOAD {
			continue
		}
		if len(segments) >= MaxSegments {
			f.Close() //nolint:errcheck
			return nil, fmt.Errorf("%w: limit is %d", ErrTooManySegments, MaxSegments)
		}
		segments = append(segments, Segment{
			Vaddr:  phdr.Vaddr,
			Memsz:  phdr.Memsz,
			Offset: phdr.Off,
			Filesz: phdr.Filesz,
			Perm:   permFromFlags(phdr.Flags),
		})
	}

	return &Image{file: f, Entry: hdr.Entry, Segments: segments}, nil
}

// segmentFor returns the loadable segment containing addr, or false if
// none does.
func (img *Image) segmentFor(addr uint32) (Segment, bool) {
	for _, s := range img.Segments {
		if s.contains(addr) {
			return s, true
		}
	}
	return Segment{}, false
}

// readAt reads n bytes of segment file content starting at fileOffset
// directly into dst.
func (img *Image) readAt(fileOffset uint32, dst []byte) error {
	if _, err := img.file.Seek(int64(fileOffset), 0); err != nil {
		return fmt.Errorf("cannot seek to segment offset %d: %w", fileOffset, err)
	}
	if _, err := io.ReadFull(img.file, dst); err != nil {
		return fmt.Errorf("cannot read segment bytes at offset %d: %w", fileOffset, err)
	}
	return nil
}

// Close releases the underlying file descriptor. Safe to call more than
// once.
func (img *Image) Close() error {
	if img.file == nil {
		return nil
	}
	err := img.file.Close()
	img.file = nil
	if err != nil {
		return fmt.Errorf("cannot close image file: %w", err)
	}
	return nil
}
