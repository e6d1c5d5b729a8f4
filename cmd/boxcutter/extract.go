package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boxcutter-go/boxcutter/internal/boxspec"
	"github.com/boxcutter-go/boxcutter/internal/scan"
)

func newExtractCmd() *cobra.Command {
	var selectors []string
	var decompress bool
	var decompressMax int64
	cmd := &cobra.Command{
		Use:   "extract [IN] [OUT]",
		Short: "Write the payload of the first matching box to OUT",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sel, err := boxspec.ParseList(selectors)
			if err != nil {
				return usageErr(err)
			}
			in, out, err := ioArgs(args)
			if err != nil {
				return usageErr(err)
			}

			src, inCloser, err := openInput(in)
			if err != nil {
				return err
			}
			if inCloser != nil {
				defer inCloser.Close()
			}
			sink, outCloser, err := openOutput(out)
			if err != nil {
				return err
			}
			if outCloser != nil {
				defer outCloser.Close()
			}

			comp := scan.CompressionOpts{DecompressMax: decompressMax}
			if decompress {
				comp.DecompressWhen = scan.Always
			}
			res, err := scan.Run(src, sink, scan.Options{Mode: scan.ExtractFirst, Selectors: sel, Compress: comp})
			if err != nil {
				return err
			}
			if res.Count == 0 {
				return semanticErr(fmt.Errorf("no matching box found"))
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&selectors, "selector", "s", nil, "box selector (repeatable); no selector means the first box")
	cmd.Flags().BoolVar(&decompress, "decompress", false, "decompress the extracted box if it is a brob box")
	cmd.Flags().Int64Var(&decompressMax, "decompress-max", -1, "cap on decompressed bytes; -1 unlimited, 0 disables decompression")
	return cmd
}
