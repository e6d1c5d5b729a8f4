package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boxcutter-go/boxcutter/internal/boxspec"
	"github.com/boxcutter-go/boxcutter/internal/scan"
)

func newCountCmd() *cobra.Command {
	var selectors []string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "count [FILES...]",
		Short: "Count boxes matching the given selectors",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := boxspec.ParseList(selectors)
			if err != nil {
				return usageErr(err)
			}
			return runMultiFile(args, func(name string) error {
				return countOneFile(name, sel, verbose)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&selectors, "selector", "s", nil, "box selector (repeatable); no selector means count all")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print one line per matched box after the file is scanned")
	return cmd
}

func countOneFile(name string, sel boxspec.List, verbose bool) error {
	src, closer, err := openInput(name)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	res, err := scan.Run(src, nil, scan.Options{Mode: scan.Count, Selectors: sel})
	if err != nil {
		if isRawJxl(err) {
			fmt.Printf("%s: raw JXL codestream, not a container\n", name)
			return nil
		}
		return err
	}
	if verbose {
		for _, b := range res.Boxes {
			if b.Matched {
				fmt.Fprintf(os.Stderr, "%s: [%d] 0x%x %d %s\n", name, b.Index, b.Offset, b.Length, b.Type)
			}
		}
	}
	fmt.Printf("%s: %d\n", name, res.Count)
	return nil
}
