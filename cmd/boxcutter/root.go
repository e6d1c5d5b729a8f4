package main

import "github.com/spf13/cobra"

// newRootCmd wires every subcommand of the CLI surface summarized in
// spec.md Section 6. Errors are never printed by cobra itself: RunE
// functions return them, and main classifies and reports them so the
// exit-code policy of Section 7 stays in one place.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "boxcutter",
		Short:         "Inspect and rewrite ISO BMFF / JPEG XL box streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newListCmd(),
		newCountCmd(),
		newHasCmd(),
		newExtractCmd(),
		newExtractJxlCmd(),
		newWrapJxlCmd(),
		newAddCmd(),
		newFilterCmd(),
	)
	return root
}
