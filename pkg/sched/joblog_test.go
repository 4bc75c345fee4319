package sched

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJobLogCapturesWriterOutput(t *testing.T) {
	dir := t.TempDir()
	jl, err := newJobLog(dir, 3)
	require.NoError(t, err)

	_, err = jl.writer().WriteString("hello\nworld\n")
	require.NoError(t, err)
	require.NoError(t, jl.closeWriter())

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(filepath.Join(dir, "job-3.log"))
		return err == nil && string(data) == "hello\nworld\n"
	}, time.Second, 10*time.Millisecond)
}
