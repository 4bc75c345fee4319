package sched_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/jobspin/jobspin/pkg/sched"
	"github.com/jobspin/jobspin/pkg/shm"
	"github.com/stretchr/testify/require"
)

func TestPrintReportFormatsRows(t *testing.T) {
	views := []sched.JobView{
		{
			Index: 0, PID: 1234, Name: "/bin/true", State: shm.StateDone,
			Started: true, SubmissionSlice: 1, CompletionSlice: 4,
			SlicesRan: 3, SlicesWaited: 0, ExitCode: 0,
		},
		{
			Index: 1, PID: 5678, Name: "/bin/false", State: shm.StateDone,
			Started: true, SubmissionSlice: 2, CompletionSlice: 9,
			SlicesRan: 2, SlicesWaited: 5, ExitCode: 1,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, sched.PrintReport(&buf, views))

	out := buf.String()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	require.Contains(t, lines[0], "Name")
	require.Contains(t, lines[0], "EXIT")
	require.Contains(t, lines[1], "/bin/true")
	require.Contains(t, lines[1], "3 TSLICES")
	require.Contains(t, lines[2], "/bin/false")
	require.Contains(t, lines[2], "5 TSLICES")
	require.Contains(t, lines[2], "1")
}

func TestPrintReportOmitsExitCodeForUnterminatedJob(t *testing.T) {
	views := []sched.JobView{
		{
			Index: 0, PID: 42, Name: "/bin/sleep", State: shm.StateRunning,
			Started: true, SubmissionSlice: 0, CompletionSlice: 0,
			SlicesRan: 1, SlicesWaited: 0, ExitCode: shm.NotTerminated,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, sched.PrintReport(&buf, views))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	fields := strings.Fields(lines[1])
	require.Equal(t, "/bin/sleep", fields[0])
	require.Equal(t, "TSLICES", fields[len(fields)-1])
}
