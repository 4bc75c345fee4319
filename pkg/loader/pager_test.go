package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestImage returns an Image backed by a real, zero-filled file large
// enough for handleFault's file reads to succeed, for tests that exercise
// the pager directly without going through OpenImage.
func newTestImage(t *testing.T, segments []Segment) *Image {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backing")
	require.NoError(t, os.WriteFile(path, make([]byte, 4*PageSize), 0o644))
	f, err := os.Open(path) //nolint:gosec // test fixture
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return &Image{file: f, Segments: segments}
}

func TestAlignDownUp(t *testing.T) {
	require.Equal(t, uint32(0), alignDown(100, PageSize))
	require.Equal(t, uint32(PageSize), alignDown(PageSize+1, PageSize))
	require.Equal(t, uint32(PageSize), alignUp(1, PageSize))
	require.Equal(t, uint32(PageSize), alignUp(PageSize, PageSize))
	require.Equal(t, uint32(2*PageSize), alignUp(PageSize+1, PageSize))
}

func TestHandleFaultDuplicateIsHarmless(t *testing.T) {
	img := newTestImage(t, []Segment{{Vaddr: 0, Memsz: PageSize}})
	p, err := newPager(img)
	require.NoError(t, err)
	defer p.release()

	require.NoError(t, p.handleFault(10))
	require.Equal(t, 1, p.stats.PageAllocations)

	// A second fault on the same page is a spurious duplicate: counted as
	// a fault but must not allocate again.
	require.NoError(t, p.handleFault(20))
	require.Equal(t, 2, p.stats.PageFaults)
	require.Equal(t, 1, p.stats.PageAllocations)
}

func TestHandleFaultOutsideSegmentRejected(t *testing.T) {
	img := newTestImage(t, []Segment{{Vaddr: 0, Memsz: 16}})
	p, err := newPager(img)
	require.NoError(t, err)
	defer p.release()

	// Exactly on segment_vaddr+memsz: outside the half-open range.
	err = p.handleFault(16)
	require.ErrorIs(t, err, ErrUnmappedFault)
	require.Equal(t, 1, p.stats.PageFaults)
	require.Equal(t, 0, p.stats.PageAllocations)
}

func TestHandleFaultFragmentationAccounting(t *testing.T) {
	img := newTestImage(t, []Segment{{Vaddr: 0, Memsz: 100}})
	p, err := newPager(img)
	require.NoError(t, err)
	defer p.release()

	require.NoError(t, p.handleFault(0))
	require.Equal(t, uint64(PageSize-100), p.stats.InternalFragmentBytes)
}

// newTruncatedTestImage returns an Image whose backing file contains
// exactly Filesz bytes, as a real PT_LOAD segment with BSS would: the
// file simply does not hold the bytes between Filesz and Memsz.
func newTruncatedTestImage(t *testing.T, seg Segment, fileContent []byte) *Image {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backing")
	buf := make([]byte, seg.Offset+seg.Filesz)
	copy(buf[seg.Offset:], fileContent)
	require.NoError(t, os.WriteFile(path, buf, 0o644))
	f, err := os.Open(path) //nolint:gosec // test fixture
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return &Image{file: f, Segments: []Segment{seg}}
}

// TestHandleFaultBSSBeyondFileContentStaysZero covers a segment whose
// Memsz exceeds its Filesz (the normal shape of a data segment with
// BSS): the file holds no bytes past Filesz, so the fault handler must
// clamp its read to the file's actual content and leave the rest of the
// page at the zero value anonymous memory already starts with, rather
// than failing on a short read.
func TestHandleFaultBSSBeyondFileContentStaysZero(t *testing.T) {
	seg := Segment{Vaddr: 0, Memsz: 200, Offset: 0, Filesz: 50}
	content := make([]byte, 50)
	for i := range content {
		content[i] = 0xAB
	}
	img := newTruncatedTestImage(t, seg, content)
	p, err := newPager(img)
	require.NoError(t, err)
	defer p.release()

	// The fault lands on the single page covering [0, 200); bytes
	// [50, 200) are BSS and must come back zero, not an error.
	require.NoError(t, p.handleFault(10))
	require.Equal(t, 1, p.stats.PageAllocations)

	page := p.bytesAt(0, 200)
	require.Equal(t, content, page[:50])
	for i := 50; i < 200; i++ {
		require.Equalf(t, byte(0), page[i], "byte %d of BSS region should be zero", i)
	}
}
