package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/boxcutter-go/boxcutter/internal/boxerr"
)

func isRawJxl(err error) bool { return errors.Is(err, boxerr.ErrRawJxl) }

// runMultiFile applies fn to each file in files (defaulting to a single
// "-" when none are given), implementing spec.md Section 7's multi-file
// propagation policy: a structural failure on one file is reported to
// stderr and does not stop the remaining files, but the command still
// exits non-zero overall if any file failed. Reading stdin twice is
// rejected rather than silently hanging.
func runMultiFile(files []string, fn func(name string) error) error {
	if len(files) == 0 {
		files = []string{"-"}
	}
	usedStdin := false
	failed := false
	for _, name := range files {
		if name == "-" {
			if usedStdin {
				fmt.Fprintln(os.Stderr, "stdin can only be read once")
				failed = true
				continue
			}
			usedStdin = true
		}
		if err := fn(name); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			failed = true
		}
	}
	if failed {
		return semanticErr(fmt.Errorf("one or more files failed"))
	}
	return nil
}
