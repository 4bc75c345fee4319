package sched

import (
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jobspin/jobspin/pkg/procset"
	"github.com/jobspin/jobspin/pkg/shm"
)

// Scheduler runs the preemptive round-robin tick loop against a
// shared-memory region. It is meant to run in its own OS process (see
// StartFrontend), holding the only references to the job processes it
// has spawned.
//
// There are no locks on the shared state: only this process mutates the
// job table and ready queue, following a strict single-writer
// discipline.
type Scheduler struct {
	state  *shm.SharedState
	ncpu   int
	tslice time.Duration
	logDir string

	running []int32
	handles map[int32]*procset.Handle
	logs    map[int32]*jobLog

	exitRequested atomic.Bool
}

// NewScheduler constructs a Scheduler over an already-mapped shared-state
// region. logDir, if non-empty, is where per-job output logs are written;
// an empty logDir disables log capture.
func NewScheduler(state *shm.SharedState, ncpu int, tslice time.Duration, logDir string) *Scheduler {
	return &Scheduler{
		state:   state,
		ncpu:    ncpu,
		tslice:  tslice,
		logDir:  logDir,
		handles: make(map[int32]*procset.Handle),
		logs:    make(map[int32]*jobLog),
	}
}

// Run executes the scheduler loop until a SIGTERM is received (checked
// cooperatively between ticks, never inside one), then kills any
// surviving job and returns.
func (s *Scheduler) Run() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		<-sigCh
		s.exitRequested.Store(true)
	}()

	for !s.exitRequested.Load() {
		s.drainSubmissions()

		if len(s.running) == 0 && s.state.RQSize == 0 && s.state.SQSize == 0 {
			time.Sleep(s.tslice)
			continue
		}

		s.tick()
		time.Sleep(s.tslice)
	}

	s.killSurvivors()
}

// Step runs one iteration of the loop body Run executes every tslice: drain
// pending submissions, then run a single scheduling tick. Unlike Run, it has
// no idle check, so the tick counter advances even when nothing is queued or
// running. It is exported so
// tests can drive the scheduler deterministically without relying on Run's
// own sleep-based pacing.
func (s *Scheduler) Step() {
	s.drainSubmissions()
	s.tick()
}

// drainSubmissions runs before every tick: while the submission queue is
// non-empty and there is table room, it spawns a new job, stops it
// immediately, and enqueues it READY.
func (s *Scheduler) drainSubmissions() {
	for s.state.SQSize > 0 && s.state.JobCount < shm.MaxJobs {
		path, ok := shm.DequeueSubmission(s.state)
		if !ok {
			break
		}
		idx := s.state.JobCount
		handle, err := s.spawn(idx, path)
		if err != nil {
			slog.Error("fork failed, skipping submission", "path", path, "err", err)
			continue
		}
		s.handles[idx] = handle

		rec := &s.state.Jobs[idx]
		rec.PID = int32(handle.PID) //nolint:gosec // pids fit in int32
		rec.SetName(path)
		rec.State = shm.StateReady
		rec.Started = 0
		rec.SubmissionSlice = s.state.Tick
		rec.CompletionSlice = 0
		rec.SlicesRan = 0
		rec.SlicesWaited = 0
		rec.ExitCode = shm.NotTerminated

		s.state.JobCount++
		shm.EnqueueReady(s.state, idx)
	}
}

func (s *Scheduler) spawn(idx int32, path string) (*procset.Handle, error) {
	if s.logDir == "" {
		return procset.Spawn(path)
	}
	jl, err := newJobLog(s.logDir, idx)
	if err != nil {
		return procset.Spawn(path) // degrade to uncaptured rather than fail the submission
	}
	handle, err := procset.SpawnCapturing(path, jl.writer())
	if closeErr := jl.closeWriter(); closeErr != nil {
		slog.Error("cannot close job log pipe", "idx", idx, "err", closeErr)
	}
	if err != nil {
		return nil, err
	}
	s.logs[idx] = jl
	return handle, nil
}

// tick preempts the running set, dispatches up to ncpu waiting jobs, and
// accounts every job still waiting.
func (s *Scheduler) tick() {
	s.state.Tick++

	currentlyRunning := s.running
	s.running = s.running[:0]

	for _, idx := range currentlyRunning {
		rec := &s.state.Jobs[idx]
		rec.SlicesRan++

		handle := s.handles[idx]
		if err := handle.Stop(); err != nil {
			slog.Error("cannot stop job", "idx", idx, "pid", rec.PID, "err", err)
		}

		if done, exitCode := handle.ReapNonBlocking(); done {
			rec.State = shm.StateDone
			rec.CompletionSlice = s.state.Tick
			rec.ExitCode = exitCode
		} else {
			rec.State = shm.StateReady
			shm.EnqueueReady(s.state, idx)
		}
	}

	for int32(len(s.running)) < int32(s.ncpu) { //nolint:gosec // ncpu is a small positive CLI argument
		idx, ok := shm.DequeueReady(s.state)
		if !ok {
			break
		}
		rec := &s.state.Jobs[idx]
		if rec.State == shm.StateDone {
			continue // late detection: the job finished between ticks
		}
		handle := s.handles[idx]
		if err := handle.Cont(); err != nil {
			slog.Error("cannot continue job", "idx", idx, "pid", rec.PID, "err", err)
		}
		rec.State = shm.StateRunning
		rec.Started = 1
		s.running = append(s.running, idx)
	}

	for i := int32(0); i < s.state.RQSize; i++ {
		idx := shm.ReadyAt(s.state, i)
		s.state.Jobs[idx].SlicesWaited++
	}
}

// killSurvivors runs just before the scheduler process exits: any job not
// yet DONE is killed with an uncatchable signal, reaped, and marked DONE
// at the final tick.
func (s *Scheduler) killSurvivors() {
	for idx := int32(0); idx < s.state.JobCount; idx++ {
		rec := &s.state.Jobs[idx]
		if rec.State == shm.StateDone {
			continue
		}
		handle := s.handles[idx]
		if err := handle.Kill(); err != nil {
			slog.Error("cannot kill surviving job", "idx", idx, "pid", rec.PID, "err", err)
		}
		rec.State = shm.StateDone
		rec.CompletionSlice = s.state.Tick
	}
}
