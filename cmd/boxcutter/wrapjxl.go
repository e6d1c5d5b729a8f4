package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/boxcutter-go/boxcutter/internal/jxl"
)

func newWrapJxlCmd() *cobra.Command {
	var level int
	var splits string
	cmd := &cobra.Command{
		Use:   "wrap-jxl-codestream [IN] [OUT]",
		Short: `Wrap a raw JPEG XL codestream in an ISO/IEC 18181-2 container`,
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, out, err := ioArgs(args)
			if err != nil {
				return usageErr(err)
			}

			var opts jxl.WrapOptions
			if cmd.Flags().Changed("level") {
				if level < 0 || level > 255 {
					return usageErr(fmt.Errorf("--level must be between 0 and 255"))
				}
				b := byte(level)
				opts.Level = &b
			}
			if splits != "" {
				parts := strings.Split(splits, ",")
				opts.Splits = make([]int64, len(parts))
				for i, p := range parts {
					n, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
					if err != nil {
						return usageErr(fmt.Errorf("--splits: %q is not an integer: %w", p, err))
					}
					opts.Splits[i] = n
				}
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

			return jxl.AssembleContainer(src, sink, opts)
		},
	}
	cmd.Flags().IntVarP(&level, "level", "l", 0, "declare a codestream conformance level N (adds a jxll box)")
	cmd.Flags().StringVarP(&splits, "splits", "s", "", "comma-separated byte offsets to split the codestream into jxlp boxes")
	return cmd
}
