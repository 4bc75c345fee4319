package loader

import (
	"fmt"
	"io"
)

// PrintReport writes the end-of-run report: the entry's return value, a
// statistics banner line, then the three labelled statistics, matching the reference loader's own
// printf sequence line for line.
func PrintReport(w io.Writer, result *Result) error {
	lines := []string{
		fmt.Sprintf("User _start return value = %d", result.ReturnValue),
		"--- SimpleSmartLoader Statistics ---",
		fmt.Sprintf("Total Page Faults: %d", result.Stats.PageFaults),
		fmt.Sprintf("Total Page Allocations: %d", result.Stats.PageAllocations),
		fmt.Sprintf("Total Internal Fragmentation: %.2f KB", result.Stats.FragmentationKB()),
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("cannot write loader report: %w", err)
		}
	}
	return nil
}
