// Jobspin is an interactive shell that submits executables to a
// user-space preemptive round-robin scheduler and reports their
// turnaround and wait statistics on exit.
//
//	jobspin run <NCPU> <TSLICE>
//
// Once running, the shell reads commands from standard input:
//
//	submit <path>
//	logs <index>
//	exit
//
// SIGINT and end-of-input both trigger the same shutdown path: drain
// pending submissions, terminate the scheduler process, and print the
// final report.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/jobspin/jobspin/pkg/sched"
	"github.com/jobspin/jobspin/pkg/shm"
)

const description = "Jobspin runs submitted executables under a preemptive round-robin scheduler."

const inheritedRegionFD = 3

func main() {
	if len(os.Args) > 1 && os.Args[1] == sched.ReexecArg {
		runScheduler(os.Args[2:])
		return
	}

	var writer io.Writer = os.Stdout
	opts := []kong.Option{
		kong.Bind(&writer),
		kong.Description(description),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	}
	kctx := kong.Parse(&cli{}, opts...)
	kctx.FatalIfErrorf(kctx.Run())
}

// runScheduler is the hidden entry point a re-exec of this same binary
// takes (see pkg/sched.ReexecArg and pkg/sched.StartFrontend): it maps
// the shared-memory region inherited at fd 3 and runs the scheduler loop
// until terminated.
func runScheduler(args []string) {
	if len(args) != 3 { //nolint:mnd
		fmt.Fprintln(os.Stderr, "jobspin: bad internal scheduler arguments") //nolint:errcheck
		os.Exit(1)
	}
	ncpu, err1 := strconv.Atoi(args[0])
	tsliceMS, err2 := strconv.Atoi(args[1])
	if err1 != nil || err2 != nil {
		fmt.Fprintln(os.Stderr, "jobspin: bad internal scheduler arguments") //nolint:errcheck
		os.Exit(1)
	}
	logDir := args[2]

	region, err := shm.Open(inheritedRegionFD)
	if err != nil {
		fmt.Fprintln(os.Stderr, "jobspin:", err) //nolint:errcheck
		os.Exit(1)
	}

	s := sched.NewScheduler(region.State(), ncpu, time.Duration(tsliceMS)*time.Millisecond, logDir)
	s.Run()
	os.Exit(0)
}

type cli struct {
	Run runCmd `cmd:"" help:"Start the scheduler and an interactive submission shell."`
}

type runCmd struct {
	NCPU   int `arg:"" required:"" help:"Number of logical CPUs (positive integer)."`
	TSlice int `arg:"" required:"" help:"Time slice duration in milliseconds (positive integer)."`

	w  io.Writer
	fe *sched.Frontend
}

// AfterApply is called by kong before Run; it recovers the bound writer so
// tests can redirect output without touching os.Stdout.
func (c *runCmd) AfterApply(w *io.Writer) error {
	c.w = *w
	return nil
}

// Run is called by kong when the CLI arguments contain the `run` command.
func (c *runCmd) Run() error {
	fe, err := sched.StartFrontend(c.NCPU, c.TSlice)
	if err != nil {
		return fmt.Errorf("cannot start scheduler: %w", err)
	}
	c.fe = fe

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)

	fmt.Fprintln(c.w, "Jobspin scheduler shell")                      //nolint:errcheck
	fmt.Fprintln(c.w, "Commands: submit <path>, logs <index>, exit") //nolint:errcheck

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		fmt.Fprint(c.w, "jobspin$ ") //nolint:errcheck
		select {
		case <-sigCh:
			fmt.Fprintln(c.w, "\ncaught interrupt, shutting down") //nolint:errcheck
			break loop
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(c.w, "\nexiting") //nolint:errcheck
				break loop
			}
			if c.handleLine(line) {
				break loop
			}
		}
	}

	if err := fe.RequestTermination(); err != nil {
		return fmt.Errorf("cannot terminate scheduler cleanly: %w", err)
	}
	if err := sched.PrintReport(c.w, fe.Report()); err != nil {
		return fmt.Errorf("cannot print report: %w", err)
	}
	return fe.Close() //nolint:wrapcheck
}

// handleLine processes one shell line and reports whether the shell
// should exit, matching simple_shell.c's submit/exit command pair, plus
// a logs command that reads a job's captured output from its log file in
// the front-end's log directory.
func (c *runCmd) handleLine(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "exit":
		return true
	case "submit":
		if len(fields) < 2 { //nolint:mnd
			fmt.Fprintln(c.w, "usage: submit <path_to_executable>") //nolint:errcheck
			return false
		}
		if err := c.fe.Submit(fields[1]); err != nil {
			fmt.Fprintln(c.w, "error:", err) //nolint:errcheck
			return false
		}
		fmt.Fprintln(c.w, "job submitted:", fields[1]) //nolint:errcheck
	case "logs":
		if len(fields) < 2 { //nolint:mnd
			fmt.Fprintln(c.w, "usage: logs <job_index>") //nolint:errcheck
			return false
		}
		c.printLog(fields[1])
	default:
		fmt.Fprintln(c.w, "unknown command") //nolint:errcheck
	}
	return false
}

// printLog writes the captured output of the job at the given index to
// the shell's output, or an error if the index is invalid or no output
// was captured.
func (c *runCmd) printLog(arg string) {
	idx, err := strconv.Atoi(arg)
	if err != nil {
		fmt.Fprintln(c.w, "usage: logs <job_index>") //nolint:errcheck
		return
	}
	rc, err := c.fe.OpenLog(int32(idx)) //nolint:gosec // idx comes from a bounded shell argument
	if err != nil {
		fmt.Fprintln(c.w, "error:", err) //nolint:errcheck
		return
	}
	defer rc.Close() //nolint:errcheck
	if _, err := io.Copy(c.w, rc); err != nil {
		fmt.Fprintln(c.w, "error reading log:", err) //nolint:errcheck
	}
}
