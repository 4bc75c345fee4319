package sched_test

import (
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jobspin/jobspin/pkg/sched"
	"github.com/jobspin/jobspin/pkg/shm"
)

// TestMain lets this test binary double as the scheduler process: when
// StartFrontend re-execs os.Executable() (which, under `go test`, is this
// very test binary) with sched.ReexecArg, control comes back here instead
// of running the test suite, exactly as cmd/jobspin's real main does. This
// is the same "helper subprocess" pattern the standard library's own
// os/exec tests use.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == sched.ReexecArg {
		runSchedulerHelper()
		return
	}
	os.Exit(m.Run())
}

func runSchedulerHelper() {
	ncpu, err := strconv.Atoi(os.Args[2])
	if err != nil {
		os.Exit(1)
	}
	tsliceMS, err := strconv.Atoi(os.Args[3])
	if err != nil {
		os.Exit(1)
	}
	logDir := os.Args[4]

	region, err := shm.Open(3)
	if err != nil {
		os.Exit(1)
	}
	s := sched.NewScheduler(region.State(), ncpu, time.Duration(tsliceMS)*time.Millisecond, logDir)
	s.Run()
	os.Exit(0)
}
