// Package procset wraps the raw process-control primitives the scheduler
// needs: spawning a job so its signals and exit status are fully owned by
// the caller, STOP/CONT/KILL, and a non-blocking reap.
//
// os/exec.Cmd is deliberately not used here: it installs its own internal
// bookkeeping around Wait, which conflicts with the scheduler's need to
// reap each child non-blockingly, every tick, without ever calling a
// blocking Wait until shutdown. os.StartProcess gives the thinner control
// the scheduler loop needs.
package procset

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// ErrSpawnFailed is returned when a job process cannot be started.
var ErrSpawnFailed = errors.New("spawn failed")

// ExitFailed is the exit code recorded when a child could not be reaped
// cleanly (terminated by a signal or otherwise not carrying a normal exit
// status).
const ExitFailed = -1

// Handle identifies a running job process.
type Handle struct {
	PID     int
	process *os.Process
}

// Spawn starts path as a new process and immediately sends it SIGSTOP,
// holding it pre-execution until the scheduler dispatches it.
//
// path is resolved through a shell (`sh -c 'exec "$0"' path`) rather than
// directly: if path does not exist or is not executable, the shell itself
// exits with status 127, so a bad submission is created and its failure
// observed at the next tick's reap, rather than surfacing as a
// scheduler-level error, without requiring a raw fork+exec syscall pair
// that Go's runtime cannot safely perform on its own.
func Spawn(path string) (*Handle, error) {
	shPath, err := exec.LookPath("sh")
	if err != nil {
		return nil, fmt.Errorf("%w: cannot find sh: %w", ErrSpawnFailed, err)
	}
	argv := []string{"sh", "-c", `exec "$0"`, path}
	attr := &os.ProcAttr{
		Files: []*os.File{os.Stdin, os.Stdout, os.Stderr},
		Sys:   &syscall.SysProcAttr{Setpgid: true},
	}
	proc, err := os.StartProcess(shPath, argv, attr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSpawnFailed, path, err)
	}
	h := &Handle{PID: proc.Pid, process: proc}
	if err := h.Stop(); err != nil {
		return h, err
	}
	return h, nil
}

// SpawnCapturing behaves like Spawn but redirects the child's stdout and
// stderr to the given writer end of a pipe, for per-job log capture.
func SpawnCapturing(path string, out *os.File) (*Handle, error) {
	shPath, err := exec.LookPath("sh")
	if err != nil {
		return nil, fmt.Errorf("%w: cannot find sh: %w", ErrSpawnFailed, err)
	}
	argv := []string{"sh", "-c", `exec "$0"`, path}
	attr := &os.ProcAttr{
		Files: []*os.File{os.Stdin, out, out},
		Sys:   &syscall.SysProcAttr{Setpgid: true},
	}
	proc, err := os.StartProcess(shPath, argv, attr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrSpawnFailed, path, err)
	}
	h := &Handle{PID: proc.Pid, process: proc}
	if err := h.Stop(); err != nil {
		return h, err
	}
	return h, nil
}

// Stop sends SIGSTOP. A STOP sent to an already-stopped or already-exited
// process is harmless.
func (h *Handle) Stop() error {
	if err := h.process.Signal(syscall.SIGSTOP); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("cannot stop pid %d: %w", h.PID, err)
	}
	return nil
}

// Cont sends SIGCONT, resuming a stopped process.
func (h *Handle) Cont() error {
	if err := h.process.Signal(syscall.SIGCONT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("cannot continue pid %d: %w", h.PID, err)
	}
	return nil
}

// Kill sends SIGKILL and reaps the process, blocking. Used only during
// shutdown cleanup, where a final wait is acceptable.
func (h *Handle) Kill() error {
	if err := h.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("cannot kill pid %d: %w", h.PID, err)
	}
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(h.PID, &ws, 0, nil)
	if err != nil && !errors.Is(err, syscall.ECHILD) {
		return fmt.Errorf("cannot reap killed pid %d: %w", h.PID, err)
	}
	return nil
}

// ReapNonBlocking performs a non-blocking waitpid(WNOHANG) on the process.
// done reports whether the process has exited (either reaped here, or
// already gone, e.g. kill(pid, 0) failing with ESRCH); exitCode is only
// meaningful when done is true.
func (h *Handle) ReapNonBlocking() (done bool, exitCode int32) {
	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(h.PID, &ws, syscall.WNOHANG, nil)
	if err != nil {
		if errors.Is(err, syscall.ECHILD) {
			return true, ExitFailed
		}
		return false, 0
	}
	if pid == 0 {
		// Still running or still stopped; confirm it hasn't vanished underneath us.
		if sigErr := syscall.Kill(h.PID, 0); sigErr != nil && errors.Is(sigErr, syscall.ESRCH) {
			return true, ExitFailed
		}
		return false, 0
	}
	switch {
	case ws.Exited():
		return true, int32(ws.ExitStatus()) //nolint:gosec // exit statuses fit in int32
	case ws.Signaled():
		return true, ExitFailed
	default:
		// Stopped or continued notification, not a terminal transition.
		return false, 0
	}
}
