package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/boxcutter-go/boxcutter/internal/jxl"
)

func newExtractJxlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract-jxl-codestream [IN] [OUT]",
		Short: "Extract the raw JPEG XL codestream from a JXL container file",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
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

			warnings, err := jxl.ExtractCodestream(src, sink)
			for _, w := range warnings {
				fmt.Fprintf(os.Stderr, "warning: %s\n", w.Msg)
			}
			return err
		},
	}
}
