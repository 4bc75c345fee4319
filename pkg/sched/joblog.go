package sched

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// jobLog captures one job's combined stdout/stderr into a durable
// per-job file, the surface the "jobspin logs" shell command reads back
// through Frontend.OpenLog.
type jobLog struct {
	file  *os.File
	pipeW *os.File
}

// newJobLog creates the log file for job idx under dir. It returns the
// write end of a pipe to hand to procset.SpawnCapturing as the child's
// stdout/stderr.
func newJobLog(dir string, idx int32) (*jobLog, error) {
	path := filepath.Join(dir, fmt.Sprintf("job-%d.log", idx))
	file, err := os.Create(path) //nolint:gosec // G304: path built from a trusted internal index
	if err != nil {
		return nil, fmt.Errorf("cannot create log file %q: %w", path, err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("cannot create log pipe: %w", err)
	}
	jl := &jobLog{file: file, pipeW: w}
	go jl.copyLoop(r)
	return jl, nil
}

// copyLoop copies from the read end of the job's output pipe into the
// durable log file until the child closes its end of the pipe (that is,
// until the job exits).
func (jl *jobLog) copyLoop(r *os.File) {
	defer r.Close()
	defer jl.file.Close()
	_, _ = io.Copy(jl.file, r)
}

// writer returns the file descriptor the spawned job should inherit as its
// stdout/stderr.
func (jl *jobLog) writer() *os.File {
	return jl.pipeW
}

// closeWriter closes the parent's copy of the pipe's write end once the
// child has been spawned, so EOF on the read end is detected when (and
// only when) the child itself exits.
func (jl *jobLog) closeWriter() error {
	return jl.pipeW.Close()
}
