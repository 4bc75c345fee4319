package shm

import "bytes"

// MaxJobs bounds the job table, the ready queue, and the submission queue.
const MaxJobs = 100

// NameSize is the fixed storage for a job's path, matching the C original's
// 256-byte (255 bytes + NUL) name field.
const NameSize = 256

// State is a job's lifecycle state.
type State int32

// Job lifecycle states.
const (
	StateReady State = iota
	StateRunning
	StateDone
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Sentinel exit codes, mirroring the teacher's job.NotTerminated and
// job.TerminatedBySignal constants.
const (
	NotTerminated      = -2
	TerminatedBySignal = -1
)

// JobRecord is one append-only entry in the job table. It contains no
// pointers, strings, or slices so that it may be safely overlaid onto
// memory-mapped bytes shared across processes.
type JobRecord struct {
	PID             int32
	Name            [NameSize]byte
	State           State
	Started         int32 // 0 or 1
	SubmissionSlice int32
	CompletionSlice int32
	SlicesRan       int32
	SlicesWaited    int32
	ExitCode        int32
}

// GetName returns the job's path as a Go string.
func (j *JobRecord) GetName() string {
	n := bytes.IndexByte(j.Name[:], 0)
	if n < 0 {
		n = len(j.Name)
	}
	return string(j.Name[:n])
}

// SetName truncates path to NameSize-1 bytes and stores it NUL-terminated.
func (j *JobRecord) SetName(path string) {
	clear(j.Name[:])
	n := copy(j.Name[:NameSize-1], path)
	j.Name[n] = 0
}

// SharedState is the single fixed-capacity record mapped into the front-end
// and scheduler processes. It contains the job table, the ready queue, and
// the submission queue, each a circular buffer of fixed capacity MaxJobs.
//
// Mutation discipline: only the front-end process appends to SubmitQueue;
// only the scheduler process drains SubmitQueue and mutates
// Jobs/ReadyQueue. There are no locks; correctness relies on this
// single-writer-per-field discipline together with the scheduler's
// once-per-tick drain.
type SharedState struct {
	JobCount int32
	Jobs     [MaxJobs]JobRecord

	ReadyQueue   [MaxJobs]int32
	RQHead       int32
	RQTail       int32
	RQSize       int32

	SubmitQueue [MaxJobs][NameSize]byte
	SQHead      int32
	SQTail      int32
	SQSize      int32

	Tick int32
}
