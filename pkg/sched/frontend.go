package sched

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/jobspin/jobspin/pkg/shm"
)

// submissionDrainTimeout and terminationGrace are the front-end's only
// two timeouts.
const (
	submissionDrainTimeout = time.Second
	submissionPollInterval = 100 * time.Millisecond
	terminationGrace       = 200 * time.Millisecond
)

// Frontend is the submission front-end side of the scheduler protocol: it
// owns the shared-memory region, the scheduler child process, and the
// per-job log directory, and exposes exactly the two operations a
// submission shell needs — Submit and RequestTermination — plus Report
// and OpenLog for displaying results.
type Frontend struct {
	region   *shm.Region
	schedCmd *exec.Cmd
	logDir   string
}

// StartFrontend validates NCPU/TSLICE, creates the shared region, and
// launches the scheduler as a re-exec of the current binary, passing the
// shared-memory file descriptor through exec.Cmd.ExtraFiles.
func StartFrontend(ncpu, tsliceMS int) (*Frontend, error) {
	if ncpu <= 0 || tsliceMS <= 0 {
		return nil, fmt.Errorf("%w: NCPU and TSLICE must be positive integers", ErrBadArgs)
	}

	region, err := shm.Create()
	if err != nil {
		return nil, err
	}

	logDir, err := os.MkdirTemp("", "jobspin-logs-")
	if err != nil {
		region.Close() //nolint:errcheck
		return nil, fmt.Errorf("cannot create log directory: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		region.Close()            //nolint:errcheck
		os.RemoveAll(logDir) //nolint:errcheck
		return nil, fmt.Errorf("cannot resolve current executable: %w", err)
	}

	cmd := exec.Command(exe, ReexecArg, strconv.Itoa(ncpu), strconv.Itoa(tsliceMS), logDir)
	cmd.ExtraFiles = []*os.File{region.File()}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		region.Close()            //nolint:errcheck
		os.RemoveAll(logDir) //nolint:errcheck
		return nil, fmt.Errorf("cannot start scheduler process: %w", err)
	}

	return &Frontend{region: region, schedCmd: cmd, logDir: logDir}, nil
}

// Submit appends path to the submission queue.
func (f *Frontend) Submit(path string) error {
	return shm.Submit(f.region.State(), path)
}

// RequestTermination waits up to one second (polling every 100ms) for the
// submission queue to drain, signals the scheduler to stop, and waits
// briefly before reaping it.
func (f *Frontend) RequestTermination() error {
	waited := time.Duration(0)
	for f.region.State().SQSize > 0 && waited < submissionDrainTimeout {
		time.Sleep(submissionPollInterval)
		waited += submissionPollInterval
	}

	if err := f.schedCmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("cannot signal scheduler: %w", err)
	}
	time.Sleep(terminationGrace)
	if err := f.schedCmd.Wait(); err != nil {
		return fmt.Errorf("cannot reap scheduler process: %w", err)
	}
	return nil
}

// Report returns a snapshot of every submitted job in submission order.
func (f *Frontend) Report() []JobView {
	state := f.region.State()
	views := make([]JobView, 0, state.JobCount)
	for idx := int32(0); idx < state.JobCount; idx++ {
		rec := &state.Jobs[idx]
		views = append(views, JobView{
			Index:           idx,
			PID:             rec.PID,
			Name:            rec.GetName(),
			State:           rec.State,
			Started:         rec.Started != 0,
			SubmissionSlice: rec.SubmissionSlice,
			CompletionSlice: rec.CompletionSlice,
			SlicesRan:       rec.SlicesRan,
			SlicesWaited:    rec.SlicesWaited,
			ExitCode:        rec.ExitCode,
		})
	}
	return views
}

// OpenLog opens the captured output of the job at idx for reading. It
// returns an error if log capture was disabled or the job was never
// submitted.
func (f *Frontend) OpenLog(idx int32) (io.ReadCloser, error) {
	path := filepath.Join(f.logDir, fmt.Sprintf("job-%d.log", idx))
	file, err := os.Open(path) //nolint:gosec // G304: path built from a trusted internal index
	if err != nil {
		return nil, fmt.Errorf("cannot open log for job %d: %w", idx, err)
	}
	return file, nil
}

// Close releases the shared-memory region and removes the log directory.
// It tolerates being called after RequestTermination and is idempotent.
func (f *Frontend) Close() error {
	var err error
	if f.logDir != "" {
		if rmErr := os.RemoveAll(f.logDir); rmErr != nil {
			err = rmErr
		}
		f.logDir = ""
	}
	if cerr := f.region.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
