package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boxcutter-go/boxcutter/internal/boxspec"
	"github.com/boxcutter-go/boxcutter/internal/scan"
)

// compressionFlags bundles the pflag definitions shared by add and
// filter for the CompressionOpts policy of spec component 3/4.5,
// translating string flag values to the typed policy scan.Run consumes.
type compressionFlags struct {
	effort          int
	compressWhen    string
	compressBoxes   []string
	decompressWhen  string
	decompressBoxes []string
	decompressMax   int64
	protectJxl      bool
	recompress      bool
}

// registerCompressionFlags adds the "[comp flags]" group spec.md Section
// 6 names for the add and filter subcommands.
func registerCompressionFlags(cmd *cobra.Command) *compressionFlags {
	f := &compressionFlags{}
	flags := cmd.Flags()
	flags.IntVar(&f.effort, "effort", 11, "Brotli encode effort, 0-11")
	flags.StringVar(&f.compressWhen, "compress-when", "never", "when to compress matching boxes: never, auto, always")
	flags.StringArrayVar(&f.compressBoxes, "compress", nil, "box selector for compression candidates (repeatable)")
	flags.StringVar(&f.decompressWhen, "decompress-when", "never", "when to decompress brob boxes: never, always")
	flags.StringArrayVar(&f.decompressBoxes, "decompress", nil, "box selector for decompression candidates (repeatable)")
	flags.Int64Var(&f.decompressMax, "decompress-max", -1, "cap on decompressed bytes per box; -1 unlimited, 0 disables decompression")
	flags.BoolVar(&f.protectJxl, "protect-jxl", true, "exempt jxl*/ftyp/jbrd boxes from compression")
	flags.BoolVar(&f.recompress, "recompress", false, "allow already-compressed (brob) boxes to be recompressed")
	return f
}

// resolve validates and converts the raw flag values into a
// scan.CompressionOpts; callers should wrap a non-nil error with
// usageErr, since every failure here is a bad flag value.
func (f *compressionFlags) resolve() (scan.CompressionOpts, error) {
	compressWhen, err := parseWhen(f.compressWhen, scan.Never, scan.Auto, scan.Always)
	if err != nil {
		return scan.CompressionOpts{}, fmt.Errorf("--compress-when: %w", err)
	}
	decompressWhen, err := parseWhen(f.decompressWhen, scan.Never, scan.Always)
	if err != nil {
		return scan.CompressionOpts{}, fmt.Errorf("--decompress-when: %w", err)
	}
	compressBoxes, err := boxspec.ParseList(f.compressBoxes)
	if err != nil {
		return scan.CompressionOpts{}, fmt.Errorf("--compress: %w", err)
	}
	decompressBoxes, err := boxspec.ParseList(f.decompressBoxes)
	if err != nil {
		return scan.CompressionOpts{}, fmt.Errorf("--decompress: %w", err)
	}
	return scan.CompressionOpts{
		Effort:          f.effort,
		CompressWhen:    compressWhen,
		CompressBoxes:   compressBoxes,
		DecompressWhen:  decompressWhen,
		DecompressBoxes: decompressBoxes,
		DecompressMax:   f.decompressMax,
		ProtectJxl:      f.protectJxl,
		Recompress:      f.recompress,
	}, nil
}

var whenNames = map[scan.When]string{scan.Never: "never", scan.Auto: "auto", scan.Always: "always"}

func parseWhen(s string, allowed ...scan.When) (scan.When, error) {
	for _, w := range allowed {
		if whenNames[w] == s {
			return w, nil
		}
	}
	names := make([]string, len(allowed))
	for i, w := range allowed {
		names[i] = whenNames[w]
	}
	return scan.Never, fmt.Errorf("%q is not one of %v", s, names)
}
