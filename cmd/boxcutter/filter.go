package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boxcutter-go/boxcutter/internal/boxspec"
	"github.com/boxcutter-go/boxcutter/internal/scan"
)

func newFilterCmd() *cobra.Command {
	var keepSelectors, dropSelectors []string
	cmd := &cobra.Command{
		Use:   "filter [IN] [OUT]",
		Short: "Keep or drop boxes matching selectors, optionally recompressing the rest",
		Args:  cobra.MaximumNArgs(2),
	}
	compFlags := registerCompressionFlags(cmd)
	cmd.Flags().StringArrayVar(&keepSelectors, "keep", nil, "keep only boxes matching this selector (repeatable)")
	cmd.Flags().StringArrayVar(&dropSelectors, "drop", nil, "drop boxes matching this selector (repeatable)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(keepSelectors) > 0 && len(dropSelectors) > 0 {
			return usageErr(fmt.Errorf("--keep and --drop cannot both be given"))
		}
		mode := scan.Keep
		selStrs := keepSelectors
		if len(dropSelectors) > 0 {
			mode = scan.Drop
			selStrs = dropSelectors
		}
		sel, err := boxspec.ParseList(selStrs)
		if err != nil {
			return usageErr(err)
		}
		comp, err := compFlags.resolve()
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

		_, err = scan.Run(src, sink, scan.Options{Mode: mode, Selectors: sel, Compress: comp})
		return err
	}
	return cmd
}
