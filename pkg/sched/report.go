package sched

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/jobspin/jobspin/pkg/shm"
)

// PrintReport writes the end-of-run report: a header line, then one row
// per job in submission order, with turnaround and wait columns suffixed
// "TSLICES". An EXIT column is appended, mirroring the teacher's own
// report (cmd/telejob's printJobStatus), which always surfaces a job's
// terminal exit status alongside the rest of its timing columns.
func PrintReport(w io.Writer, views []JobView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "Name\tPID\t\"Turnaround Time\"\t\"Wait Time\"\tEXIT"); err != nil {
		return fmt.Errorf("cannot write report header: %w", err)
	}
	for _, v := range views {
		_, err := fmt.Fprintf(tw, "%s\t%d\t%d TSLICES\t%d TSLICES\t%s\n",
			v.Name, v.PID, v.Turnaround(), v.SlicesWaited, exitCodeString(v.ExitCode))
		if err != nil {
			return fmt.Errorf("cannot write report row for %q: %w", v.Name, err)
		}
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("cannot flush report: %w", err)
	}
	return nil
}

func exitCodeString(exitCode int32) string {
	if exitCode == shm.NotTerminated {
		return ""
	}
	return fmt.Sprintf("%d", exitCode)
}
