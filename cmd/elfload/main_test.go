package main

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

func buildTestELF(t *testing.T) string {
	t.Helper()
	const ehdrSize, phdrSize = 52, 32
	const headerRoom = ehdrSize + phdrSize

	code := append(encodeWord(loader.OpLoad, 7), encodeWord(loader.OpHalt, 0)...)

	hdr := elf.Header32{Entry: 0, Phoff: ehdrSize, Ehsize: ehdrSize, Phentsize: phdrSize, Phnum: 1}
	copy(hdr.Ident[:], elf.ELFMAG)
	phdr := elf.Prog32{
		Type: uint32(elf.PT_LOAD), Off: headerRoom,
		Filesz: uint32(len(code)), Memsz: 16, Flags: uint32(elf.PF_R | elf.PF_X),
	}

	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &hdr))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, &phdr))
	buf.Write(code)

	path := filepath.Join(t.TempDir(), "test.elf")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestCLIRunPrintsEntryAndStats(t *testing.T) {
	path := buildTestELF(t)

	var out bytes.Buffer
	c := &cli{Path: path, w: &out}
	require.NoError(t, c.Run())

	text := out.String()
	require.Contains(t, text, "User _start return value = 7")
	require.Contains(t, text, "Total Page Faults: 1")
	require.Contains(t, text, "Total Page Allocations: 1")
}

func TestCLIRunFailsOnMissingFile(t *testing.T) {
	var out bytes.Buffer
	c := &cli{Path: filepath.Join(t.TempDir(), "missing.elf"), w: &out}
	require.Error(t, c.Run())
}
