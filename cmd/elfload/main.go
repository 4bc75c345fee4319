// Elfload loads and runs a statically linked ELF32 executable under
// demand paging, printing the entry point's return value followed by
// page-fault, page-allocation, and internal-fragmentation statistics.
//
//	elfload <path>
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/jobspin/jobspin/pkg/loader"
)

const description = "Elfload runs a statically linked ELF32 executable under a demand-paging loader."

type cli struct {
	Path string `arg:"" required:"" help:"Path to a statically linked ELF32 executable."`

	w io.Writer
}

func (c *cli) AfterApply(w *io.Writer) error {
	c.w = *w
	return nil
}

// Run is called by kong once the positional Path argument is parsed.
func (c *cli) Run() error {
	result, err := loader.Run(c.Path)
	if err != nil {
		return fmt.Errorf("cannot load %q: %w", c.Path, err)
	}
	return loader.PrintReport(c.w, result) //nolint:wrapcheck
}

func main() {
	var writer io.Writer = os.Stdout
	opts := []kong.Option{
		kong.Bind(&writer),
		kong.Description(description),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	}
	kctx := kong.Parse(&cli{}, opts...)
	kctx.FatalIfErrorf(kctx.Run())
}
