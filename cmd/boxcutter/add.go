package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/boxcutter-go/boxcutter/internal/box"
	"github.com/boxcutter-go/boxcutter/internal/scan"
	"github.com/boxcutter-go/boxcutter/internal/source"
	"github.com/boxcutter-go/boxcutter/internal/writer"
)

func newAddCmd() *cobra.Command {
	var at int
	var boxArgs []string
	var encodingName string
	cmd := &cobra.Command{
		Use:   "add [IN] [OUT]",
		Short: "Insert one or more literal boxes into a box stream",
		Args:  cobra.MaximumNArgs(2),
	}
	compFlags := registerCompressionFlags(cmd)
	cmd.Flags().IntVar(&at, "at", 0, "box index to insert before (default: append after the last box)")
	cmd.Flags().StringArrayVar(&boxArgs, "box", nil, "TYPE=TEXT or TYPE@FILE (repeatable, in order)")
	cmd.Flags().StringVar(&encodingName, "encoding", "utf-8", "text encoding for TYPE=TEXT box arguments")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		parsedArgs := make([]parsedBoxArg, 0, len(boxArgs))
		for _, s := range boxArgs {
			pb, err := parseBoxArg(s)
			if err != nil {
				return usageErr(err)
			}
			parsedArgs = append(parsedArgs, pb)
		}
		enc, err := htmlindex.Get(encodingName)
		if err != nil {
			return usageErr(fmt.Errorf("--encoding %q: %w", encodingName, err))
		}

		newBoxes := make([]preparedBox, 0, len(parsedArgs))
		for _, pb := range parsedArgs {
			payload, err := pb.payload(enc)
			if err != nil {
				return err
			}
			newBoxes = append(newBoxes, preparedBox{typ: pb.typ, payload: payload})
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

		insertAt := at
		if !cmd.Flags().Changed("at") {
			insertAt = -1
		}

		if comp.CompressWhen == scan.Never && comp.DecompressWhen == scan.Never {
			return spliceInsert(src, sink, insertAt, newBoxes)
		}

		// The comp flags also apply here, so the stream passes through the
		// scan pipeline's compression dispatch once before the splice,
		// which needs random access into the result to find insertAt.
		buf := writer.NewBufferSink()
		if _, err := scan.Run(src, buf, scan.Options{Mode: scan.Keep, Compress: comp}); err != nil {
			return err
		}
		return spliceInsert(source.NewBuffer(buf.Bytes()), sink, insertAt, newBoxes)
	}
	return cmd
}

// parsedBoxArg is a --box flag value before its payload bytes are
// resolved: either TYPE=TEXT (text, to be encoded) or TYPE@FILE (a file
// path, read as raw bytes).
type parsedBoxArg struct {
	typ   box.Type
	isText bool
	value string
}

// preparedBox is a --box argument after its payload bytes are resolved,
// ready to write.
type preparedBox struct {
	typ     box.Type
	payload []byte
}

// parseBoxArg splits s into its 4-byte type and a TEXT or FILE operand,
// per spec.md Section 6's `TYPE=TEXT | TYPE@FILE` grammar: the type is
// always the first four characters, and the fifth character ('=' or '@')
// selects which form follows.
func parseBoxArg(s string) (parsedBoxArg, error) {
	if len(s) < 5 {
		return parsedBoxArg{}, fmt.Errorf("--box %q: expected TYPE=TEXT or TYPE@FILE", s)
	}
	switch s[4] {
	case '=':
		return parsedBoxArg{typ: box.TypeFromString(s[:4]), isText: true, value: s[5:]}, nil
	case '@':
		return parsedBoxArg{typ: box.TypeFromString(s[:4]), isText: false, value: s[5:]}, nil
	default:
		return parsedBoxArg{}, fmt.Errorf("--box %q: expected '=' or '@' after the 4-byte type", s)
	}
}

func (b parsedBoxArg) payload(enc encoding.Encoding) ([]byte, error) {
	if !b.isText {
		data, err := os.ReadFile(b.value)
		if err != nil {
			return nil, fmt.Errorf("--box %s@%s: %w", b.typ, b.value, err)
		}
		return data, nil
	}
	out, err := enc.NewEncoder().String(b.value)
	if err != nil {
		return nil, fmt.Errorf("--box %s=...: encoding text: %w", b.typ, err)
	}
	return []byte(out), nil
}

// spliceInsert copies every box from src to sink unchanged, writing
// newBoxes immediately before the box whose index equals at. A negative
// at, or one past the last box, appends newBoxes after everything else.
func spliceInsert(src source.ByteSource, sink writer.Sink, at int, newBoxes []preparedBox) error {
	r := box.NewReader(src)
	w := writer.New(sink)
	index := 0
	inserted := false
	for {
		hdr, ok, err := r.NextBox()
		if err != nil {
			return fmt.Errorf("scanning: %w", err)
		}
		if !ok {
			break
		}
		if !inserted && index == at {
			if err := writeNewBoxes(w, newBoxes); err != nil {
				return err
			}
			inserted = true
		}
		if err := addCopyBoxVerbatim(r, w, hdr); err != nil {
			return err
		}
		index++
	}
	if !inserted {
		if err := writeNewBoxes(w, newBoxes); err != nil {
			return err
		}
	}
	return nil
}

func writeNewBoxes(w *writer.Writer, boxes []preparedBox) error {
	for _, b := range boxes {
		if _, err := w.WriteHeader(b.typ, int64(len(b.payload))); err != nil {
			return fmt.Errorf("writing inserted box %s header: %w", b.typ, err)
		}
		if _, err := w.Write(b.payload); err != nil {
			return fmt.Errorf("writing inserted box %s payload: %w", b.typ, err)
		}
	}
	return nil
}

// addCopyBoxVerbatim re-emits a box unchanged, including its original
// header encoding, the same shape as the copy helper internal/jxl uses
// for its own pass-through boxes.
func addCopyBoxVerbatim(r *box.Reader, w *writer.Writer, hdr box.Header) error {
	if _, err := w.WriteRawHeader(r.RawHeader(), hdr.Implicit()); err != nil {
		return fmt.Errorf("writing header at offset %d: %w", hdr.Offset, err)
	}
	if _, err := r.CopyPayload(1<<62, w); err != nil {
		return fmt.Errorf("copying payload at offset %d: %w", hdr.Offset, err)
	}
	return nil
}
