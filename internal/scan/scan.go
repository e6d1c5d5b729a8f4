package scan

import (
	"bytes"
	"fmt"
	"io"

	"github.com/boxcutter-go/boxcutter/internal/box"
	"github.com/boxcutter-go/boxcutter/internal/boxerr"
	"github.com/boxcutter-go/boxcutter/internal/boxspec"
	"github.com/boxcutter-go/boxcutter/internal/source"
	"github.com/boxcutter-go/boxcutter/internal/transform"
	"github.com/boxcutter-go/boxcutter/internal/writer"
)

// Mode selects the scan pipeline's overall behavior (spec component 4.4).
type Mode int

const (
	// Keep copies every box that matches the selector list, dropping the
	// rest.
	Keep Mode = iota
	// Drop copies every box that does NOT match the selector list.
	Drop
	// ExtractFirst writes the payload of the first matching box to the
	// sink and stops.
	ExtractFirst
	// Count tallies every matching box without writing anything.
	Count
	// Has reports (via Result.Matched) whether any box matches, without
	// writing anything.
	Has
)

var brobType = box.TypeFromString("brob")

// Result summarizes a completed scan (spec component 4.4's COUNT/HAS
// outcomes, plus a verbose per-box log for the CLI's -v flag).
type Result struct {
	// Count is the number of boxes that matched the selector list
	// (Count and Has modes), or the number of boxes copied (Keep/Drop).
	Count int
	// Matched reports whether at least one box matched (Has mode).
	Matched bool
	// Boxes records one entry per box encountered, for verbose listing.
	Boxes []BoxInfo
}

// BoxInfo describes one box encountered during a scan, independent of
// mode, for -v reporting and for the "list" CLI command.
type BoxInfo struct {
	Index     int
	Type      string
	InnerType string // empty when not a brob box or inner type unreadable
	Offset    int64
	Length    int64 // 0 when implicit (final box, extends to EOF)
	Matched   bool
}

// peekHeaderBytes is how many bytes of a brob box's payload are examined
// to recover the inner type: only the 4-byte inner type itself. The outer
// 8/16-byte header is not part of the peek; box.Reader keeps those bytes
// and replays them through RawHeader.
const peekHeaderBytes = 4

// Options bundles everything a scan run needs beyond the source/sink
// pair: the dispatch mode, the selector list it matches against, and the
// compression policy.
type Options struct {
	Mode      Mode
	Selectors boxspec.List
	Compress  CompressionOpts
}

// Run executes one scan pipeline pass over src, writing to sink (which
// may be nil for the read-only Count/Has modes). It implements spec
// component 4.4 in full: inner-type peeking, selector matching, the
// seen-counter, and compress/decompress dispatch through getAction.
func Run(src source.ByteSource, sink writer.Sink, opts Options) (*Result, error) {
	r := box.NewReader(src)
	var w *writer.Writer
	if sink != nil {
		w = writer.New(sink)
	}

	res := &Result{}
	seen := map[box.Type]int{}

	for {
		hdr, ok, err := r.NextBox()
		if err != nil {
			return nil, fmt.Errorf("scanning: %w", err)
		}
		if !ok {
			break
		}

		var inner *box.Type
		var peeked []byte
		isBrob := hdr.BoxType == brobType
		if isBrob {
			peeked, err = r.ReadPayload(peekHeaderBytes)
			if err != nil {
				return nil, fmt.Errorf("peeking brob inner type: %w", err)
			}
			if len(peeked) == peekHeaderBytes {
				t := box.TypeFromString(string(peeked))
				inner = &t
			} else if !hdr.Implicit() {
				return nil, fmt.Errorf("%w: brob box at offset %d too short for an inner type", boxerr.ErrInvalidBmff, hdr.Offset)
			}
		}

		instance := seen[effectiveType(hdr.BoxType, inner)]
		matches := opts.Selectors.Matches(r.Index(), hdr.BoxType, inner, instance)

		info := BoxInfo{
			Index:   r.Index(),
			Type:    hdr.BoxType.String(),
			Offset:  hdr.Offset,
			Length:  hdr.Length,
			Matched: matches,
		}
		if inner != nil {
			info.InnerType = inner.String()
		}
		res.Boxes = append(res.Boxes, info)

		switch opts.Mode {
		case Count:
			if matches {
				res.Count++
			}
			// Any unread payload bytes (including the brob peek) are
			// skipped automatically by the next NextBox call.

		case Has:
			if matches {
				res.Matched = true
				res.Count = 1
				return res, nil
			}

		case ExtractFirst:
			if matches {
				if w == nil {
					boxerr.Usage("ExtractFirst mode requires a non-nil sink")
				}
				if err := extractPayload(r, sink, hdr, isBrob, peeked, opts.Compress); err != nil {
					return nil, err
				}
				res.Count = 1
				return res, nil
			}

		case Keep, Drop:
			want := matches
			if opts.Mode == Drop {
				want = !matches
			}
			if w == nil {
				boxerr.Usage("Keep/Drop modes require a non-nil sink")
			}
			if want {
				res.Count++
				compressMatches := opts.Compress.CompressBoxes.Matches(r.Index(), hdr.BoxType, inner, instance)
				decompressMatches := opts.Compress.DecompressBoxes.Matches(r.Index(), hdr.BoxType, inner, instance)
				act := opts.Compress.getAction(hdr.BoxType.String(), isBrob, compressMatches, decompressMatches)
				if err := dispatchCopy(r, w, hdr, inner, peeked, act, opts.Compress); err != nil {
					return nil, err
				}
			}
			// want == false: leave the payload unread, skipped by the
			// next NextBox call.

		default:
			boxerr.Usage(fmt.Sprintf("unknown scan mode %d", opts.Mode))
		}

		seen[effectiveType(hdr.BoxType, inner)]++
	}

	return res, nil
}

// effectiveType is the key the seen-counter increments: the inner type
// when present, otherwise the outer type (spec component 4.4 step 4 /
// component 3's "seen counter").
func effectiveType(outer box.Type, inner *box.Type) box.Type {
	if inner != nil {
		return *inner
	}
	return outer
}

// extractPayload implements the EXTRACT_FIRST dispatch (spec component
// 4.4 step 3).
func extractPayload(r *box.Reader, sink writer.Sink, hdr box.Header, isBrob bool, peeked []byte, comp CompressionOpts) error {
	if isBrob && comp.DecompressWhen == Always && comp.DecompressMax != 0 {
		_, err := transform.Decode(sink, payloadReader{r}, comp.DecompressMax)
		if err != nil {
			return fmt.Errorf("extracting (decompressing) box at offset %d: %w", hdr.Offset, err)
		}
		return nil
	}
	if len(peeked) > 0 {
		if _, err := sink.Write(peeked); err != nil {
			return fmt.Errorf("extracting box at offset %d: %w", hdr.Offset, err)
		}
	}
	if _, err := r.CopyPayload(1<<62, sink); err != nil {
		return fmt.Errorf("extracting box at offset %d: %w", hdr.Offset, err)
	}
	return nil
}

// dispatchCopy implements the KEEP/DROP per-box dispatch of spec
// component 4.4 step 3, honoring the action getAction assigned.
func dispatchCopy(r *box.Reader, w *writer.Writer, hdr box.Header, inner *box.Type, peeked []byte, act action, comp CompressionOpts) error {
	switch act {
	case actionNone:
		return copyVerbatim(r, w, hdr, peeked)

	case actionDecompress:
		return copyDecompressed(r, w, hdr, inner, comp)

	case actionCompress:
		return copyCompressed(r, w, hdr, peeked, comp)

	default:
		boxerr.Usage(fmt.Sprintf("unknown action %d", act))
		return nil
	}
}

// copyVerbatim re-emits hdr's original header bytes, any already-consumed
// peek bytes, and the remaining payload unchanged.
func copyVerbatim(r *box.Reader, w *writer.Writer, hdr box.Header, peeked []byte) error {
	if _, err := w.WriteRawHeader(r.RawHeader(), hdr.Implicit()); err != nil {
		return fmt.Errorf("writing header at offset %d: %w", hdr.Offset, err)
	}
	if len(peeked) > 0 {
		if _, err := w.Write(peeked); err != nil {
			return fmt.Errorf("writing peeked bytes at offset %d: %w", hdr.Offset, err)
		}
	}
	if _, err := r.CopyPayload(1<<62, w); err != nil {
		return fmt.Errorf("copying payload at offset %d: %w", hdr.Offset, err)
	}
	return nil
}

// copyDecompressed writes hdr's inner type as the new outer type with a
// deferred size, decompresses the brob body (already past the peeked
// inner-type marker) into the sink, and back-patches the size.
func copyDecompressed(r *box.Reader, w *writer.Writer, hdr box.Header, inner *box.Type, comp CompressionOpts) error {
	if inner == nil {
		boxerr.Usage("copyDecompressed called without an inner type")
	}
	d, err := w.BeginDeferred(*inner)
	if err != nil {
		return fmt.Errorf("beginning decompressed box at offset %d: %w", hdr.Offset, err)
	}
	n, err := transform.Decode(d, payloadReader{r}, comp.DecompressMax)
	if err != nil {
		return fmt.Errorf("decompressing box at offset %d: %w", hdr.Offset, err)
	}
	if err := d.Finish(n); err != nil {
		return fmt.Errorf("finalizing decompressed box at offset %d: %w", hdr.Offset, err)
	}
	return nil
}

// copyCompressed writes a brob header with a deferred size, the original
// outer 4CC as the first four payload bytes, then the remaining payload
// stream-compressed; the size is back-patched once known.
func copyCompressed(r *box.Reader, w *writer.Writer, hdr box.Header, peeked []byte, comp CompressionOpts) error {
	d, err := w.BeginDeferred(brobType)
	if err != nil {
		return fmt.Errorf("beginning compressed box at offset %d: %w", hdr.Offset, err)
	}
	var total int64
	outerBytes := [4]byte(hdr.BoxType)
	nw, err := d.Write(outerBytes[:])
	total += int64(nw)
	if err != nil {
		return fmt.Errorf("writing inner type marker at offset %d: %w", hdr.Offset, err)
	}

	payload := remainingPayloadReader(r, peeked)
	n, err := transform.Encode(d, payload, comp.Effort)
	total += n
	if err != nil {
		return fmt.Errorf("compressing box at offset %d: %w", hdr.Offset, err)
	}
	if err := d.Finish(total); err != nil {
		return fmt.Errorf("finalizing compressed box at offset %d: %w", hdr.Offset, err)
	}
	return nil
}

// remainingPayloadReader stitches any already-peeked payload bytes back
// onto the box reader's remaining payload stream, so the compression
// transform sees the box's whole payload in order.
func remainingPayloadReader(r *box.Reader, peeked []byte) io.Reader {
	if len(peeked) == 0 {
		return payloadReader{r}
	}
	return io.MultiReader(bytes.NewReader(peeked), payloadReader{r})
}

// payloadReader adapts box.Reader's payload-mode copy calls to io.Reader,
// which the compression transform requires.
type payloadReader struct{ r *box.Reader }

func (p payloadReader) Read(buf []byte) (int, error) {
	out, err := p.r.ReadPayload(len(buf))
	if err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, io.EOF
	}
	return copy(buf, out), nil
}

