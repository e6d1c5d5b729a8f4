package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boxcutter-go/boxcutter/internal/boxspec"
	"github.com/boxcutter-go/boxcutter/internal/scan"
)

func newHasCmd() *cobra.Command {
	var selectors []string
	var verbose bool
	cmd := &cobra.Command{
		Use:   "has [FILES...]",
		Short: "Exit successfully only if every named file has a matching box",
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := boxspec.ParseList(selectors)
			if err != nil {
				return usageErr(err)
			}
			anyMiss := false
			runErr := runMultiFile(args, func(name string) error {
				matched, ferr := hasOneFile(name, sel, verbose)
				if ferr != nil {
					return ferr
				}
				if !matched {
					anyMiss = true
				}
				return nil
			})
			if runErr != nil {
				return runErr
			}
			if anyMiss {
				return semanticErr(fmt.Errorf("no matching box found in one or more files"))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&selectors, "selector", "s", nil, "box selector (repeatable)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print the matched box as it is found")
	return cmd
}

func hasOneFile(name string, sel boxspec.List, verbose bool) (bool, error) {
	src, closer, err := openInput(name)
	if err != nil {
		return false, err
	}
	if closer != nil {
		defer closer.Close()
	}

	res, err := scan.Run(src, nil, scan.Options{Mode: scan.Has, Selectors: sel})
	if err != nil {
		if isRawJxl(err) {
			fmt.Printf("%s: raw JXL codestream, not a container\n", name)
			return false, nil
		}
		return false, err
	}
	if verbose && res.Matched && len(res.Boxes) > 0 {
		b := res.Boxes[len(res.Boxes)-1]
		fmt.Fprintf(os.Stderr, "%s: [%d] 0x%x %d %s\n", name, b.Index, b.Offset, b.Length, b.Type)
	}
	fmt.Printf("%s: %v\n", name, res.Matched)
	return res.Matched, nil
}
