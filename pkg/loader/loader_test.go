package loader_test

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobspin/jobspin/pkg/loader"
	"github.com/stretchr/testify/require"
)

func encodeWord(op loader.Op, operand int32) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint32(b[0:4], uint32(op))
	binary.LittleEndian.PutUint32(b[4:8], uint32(operand)) //nolint:gosec // intentional reinterpretation
	return b[:]
}

func buildMinimalELF(t *testing.T) string {
	t.Helper()
	const ehdrSize, phdrSize = 52, 32
	const headerRoom = ehdrSize + phdrSize

	code := append(encodeWord(loader.OpLoad, 99), encodeWord(loader.OpHalt, 0)...)

	hdr := elf.Header32{
		Entry: 0, Phoff: ehdrSize, Ehsize: ehdrSize, Phentsize: phdrSize, Phnum: 1,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	phdr := elf.Prog32{
		Type: uint32(elf.PT_LOAD), Off: headerRoom,
		Filesz: uint32(len(code)), Memsz: 16, Flags: uint32(elf.PF_R | elf.PF_X),
	}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &hdr))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &phdr))
	buf.Write(code)

	path := filepath.Join(t.TempDir(), "min.elf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRunAndPrintReportEndToEnd(t *testing.T) {
	path := buildMinimalELF(t)

	result, err := loader.Run(path)
	require.NoError(t, err)
	require.Equal(t, int32(99), result.ReturnValue)

	var out bytes.Buffer
	require.NoError(t, loader.PrintReport(&out, result))

	text := out.String()
	require.Contains(t, text, "User _start return value = 99")
	require.Contains(t, text, "Total Page Faults: 1")
	require.Contains(t, text, "Total Page Allocations: 1")
	require.Contains(t, text, "Total Internal Fragmentation:")
}

func TestRunFailsOnMissingFile(t *testing.T) {
	_, err := loader.Run(filepath.Join(t.TempDir(), "does-not-exist.elf"))
	require.Error(t, err)
}

func TestRunFailsOnBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bogus.elf")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0x00}, 64), 0o644))

	_, err := loader.Run(path)
	require.ErrorIs(t, err, loader.ErrNotELF)
}
