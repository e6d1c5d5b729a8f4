package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/boxcutter-go/boxcutter/internal/scan"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list FILES...",
		Short: "List all boxes in the named files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMultiFile(args, listOneFile)
		},
	}
}

// listOneFile formats a single file's box table, grounded in the
// original CLI's doList table (a seq/offset/length/type column layout),
// adapted to also show a brob box's inner type.
func listOneFile(name string) error {
	src, closer, err := openInput(name)
	if err != nil {
		return err
	}
	if closer != nil {
		defer closer.Close()
	}

	res, err := scan.Run(src, nil, scan.Options{Mode: scan.Count})
	if err != nil {
		if isRawJxl(err) {
			fmt.Printf("%s: raw JXL codestream, not a container\n", name)
			return nil
		}
		return err
	}
	if len(res.Boxes) == 0 {
		fmt.Printf("%s: empty file\n", name)
		return nil
	}

	fmt.Printf("%s:\n", name)
	for _, b := range res.Boxes {
		length := fmt.Sprintf("%d", b.Length)
		if b.Length == 0 {
			length = "to-EOF"
		}
		typ := b.Type
		if b.InnerType != "" {
			typ = fmt.Sprintf("%s (%s)", b.Type, b.InnerType)
		}
		fmt.Printf("  [%d] 0x%08x %6s %s\n", b.Index, b.Offset, length, typ)
	}
	return nil
}
