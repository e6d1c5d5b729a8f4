// Package scan implements the scan pipeline (spec component 4.4): the
// per-box dispatch loop that threads a box.Reader, a boxspec.List, the
// compression transform, and a writer.Writer together into the five scan
// modes (KEEP, DROP, EXTRACT_FIRST, COUNT, HAS).
//
// Modeled on the teacher's top-level orchestration methods
// (mrjoshuak/go-jpeg2000 decoder.go:decode, encoder.go:encode): a small
// state struct threaded through sequential per-unit stages, each
// returning a wrapped error on failure. Here the "unit" is a box instead
// of an image tile.
package scan

import "github.com/boxcutter-go/boxcutter/internal/boxspec"

// When controls which boxes a compression direction applies to.
type When int

const (
	Never When = iota
	Auto
	Always
)

// CompressionOpts configures the compress/decompress policy a scan
// applies to matched boxes (spec component 3's CompressionOpts, spec
// component 4.5's getAction).
type CompressionOpts struct {
	// Effort is the Brotli quality level, 0-11.
	Effort int

	// CompressWhen selects when boxes are compressed: Never disables
	// compression outright; Auto and Always both compress every candidate
	// box (subject to the other fields below). Auto applies no size test:
	// a box is compressed even when the result is larger.
	CompressWhen When
	// CompressBoxes restricts compression to matching boxes; nil means
	// all boxes are candidates.
	CompressBoxes boxspec.List

	// DecompressWhen selects when brob boxes are decompressed: Never or
	// Always (the data model defines no Auto for decompression).
	DecompressWhen When
	// DecompressBoxes restricts decompression to matching boxes; nil
	// means all brob boxes are candidates.
	DecompressBoxes boxspec.List

	// DecompressMax bounds the decompressed size of any single box; -1
	// is unlimited, 0 disables decompression entirely.
	DecompressMax int64

	// ProtectJxl, when true (the default), exempts box types whose
	// lowercase form begins with "jxl", plus "ftyp" and "jbrd", from
	// compression regardless of CompressWhen/CompressBoxes.
	ProtectJxl bool

	// Recompress, when false, excludes brob boxes from compression
	// candidacy even if CompressWhen and the selector list would
	// otherwise match them.
	Recompress bool
}

// action is the per-box disposition getAction resolves to.
type action int

const (
	actionNone action = iota
	actionCompress
	actionDecompress
)

// isProtected reports whether typ is exempt from compression under
// ProtectJxl: lowercase types beginning with "jxl", plus "ftyp" and
// "jbrd".
func isProtected(typ string) bool {
	lower := toLower4(typ)
	if len(lower) >= 3 && lower[:3] == "jxl" {
		return true
	}
	return lower == "ftyp" || lower == "jbrd"
}

func toLower4(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}

// getAction implements spec component 4.5's policy: whether, and how, a
// matched box should be transformed.
//
// The spec's literal wording for the compression branch ("either protectJxl
// is false and mode is not auto, or the outer type is not protected") does
// not correspond to any behavior in the original implementation (which has
// no compression policy at all — CompressionOpts is new in this version) and
// reads as a garbled restatement; resolved here as the one rule consistent
// with "Auto must continue to honor protectJxl": a box is a compression
// candidate only when it is not protected, full stop, regardless of mode
// (see DESIGN.md).
func (o *CompressionOpts) getAction(outer string, isBrob, compressMatches, decompressMatches bool) action {
	if o.CompressWhen != Never && compressMatches {
		protected := o.ProtectJxl && isProtected(outer)
		recompressOK := o.Recompress || !isBrob
		if !protected && recompressOK {
			return actionCompress
		}
	}
	if o.DecompressWhen != Never && isBrob && o.DecompressMax != 0 && decompressMatches {
		return actionDecompress
	}
	return actionNone
}

