// Command boxcutter reads, filters, recompresses, and rewrites ISO BMFF
// box streams, with dedicated support for the JPEG XL container variant.
// It is a thin cobra front end over the internal/scan, internal/jxl, and
// internal/boxspec packages; argument parsing and output formatting are
// the only things this package owns (spec.md Section 1 draws that line
// explicitly around the box engine itself).
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(int(classify(err)))
	}
}
