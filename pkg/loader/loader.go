package loader

import "fmt"

// Result is the outcome of running one ELF32 image to completion: the
// entry point's return value plus the demand-paging statistics collected
// along the way.
type Result struct {
	ReturnValue int32
	Stats       Stats
}

// Run loads path, installs demand paging, and invokes the entry point:
// parse, fault-handle on first touch, run to completion, then release
// every resource regardless of outcome.
func Run(path string) (*Result, error) {
	img, err := OpenImage(path)
	if err != nil {
		return nil, err
	}
	defer img.Close() //nolint:errcheck // best-effort on an already-failed path

	p, err := newPager(img)
	if err != nil {
		return nil, err
	}
	defer p.release()

	ret, err := run(p, img.Entry)
	if err != nil {
		return nil, fmt.Errorf("entry execution failed: %w", err)
	}

	return &Result{ReturnValue: ret, Stats: p.stats}, nil
}
