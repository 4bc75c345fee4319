// Package sched implements the jobspin round-robin process scheduler: a
// shared-memory job table and bounded queues (pkg/shm), a scheduler loop
// that preempts and dispatches real OS processes on a fixed time quantum
// (pkg/procset), and the front-end operations (submit, request
// termination, report) a submission shell uses to drive it.
package sched

import (
	"errors"

	"github.com/jobspin/jobspin/pkg/shm"
)

// Sentinel errors returned by this package.
var (
	ErrBadArgs = errors.New("bad scheduler arguments")
)

// ReexecArg is the hidden argv[1] value cmd/jobspin recognizes to re-exec
// itself as the scheduler process (see StartFrontend). It is checked
// before any CLI flag parsing, so it intentionally looks nothing like a
// real subcommand.
const ReexecArg = "__jobspin_scheduler__"

// ClampThreshold is a turnaround-time corruption guard: any computed
// turnaround outside [0, ClampThreshold] is reported as SlicesRan instead.
// The reference implementation does not explain why this clamp is needed;
// it is preserved here unchanged for compatibility.
const ClampThreshold = 60000

// JobView is a read-only snapshot of one job-table row, safe to copy out
// of the shared-memory region for reporting or display.
type JobView struct {
	Index           int32
	PID             int32
	Name            string
	State           shm.State
	Started         bool
	SubmissionSlice int32
	CompletionSlice int32
	SlicesRan       int32
	SlicesWaited    int32
	ExitCode        int32
}

// Turnaround computes the job's turnaround time in ticks, applying the
// corruption clamp.
func (v JobView) Turnaround() int32 {
	if v.State != shm.StateDone {
		return v.SlicesRan
	}
	t := v.CompletionSlice - v.SubmissionSlice
	if t < 0 || t > ClampThreshold {
		return v.SlicesRan
	}
	return t
}
