// Package transform implements the Brotli (de)compression transform
// used on brob box bodies (spec component 4.5): block-wise streaming
// encode/decode with a decompressed-size cap.
//
// New package; the teacher carries no compression dependency at all. Of
// the retrieval pack's options, dsnet-compress's brotli package
// (github.com/dsnet/compress/brotli, present at _examples/dsnet-compress)
// only implements a decoder — it has NewReader but no NewWriter and its
// dict/prefix machinery is unexported, so it cannot serve the encode
// side CompressionOpts needs. github.com/andybalholm/brotli gives both
// directions from one real, pure-Go package and is already a dependency
// of several pack repos (mholt-archiver, DataDog-datadog-agent,
// githedgehog-fabricator, nabbar-golib, pchchv-compressor per their
// go.mod manifests), which is why it is the wired choice (see
// DESIGN.md).
package transform

import (
	"fmt"
	"io"

	"github.com/andybalholm/brotli"

	"github.com/boxcutter-go/boxcutter/internal/boxerr"
)

// blockSize is the unit the encoder/decoder pump data through, matching
// the box engine's own copy-buffer size so the transform never needs a
// larger working set than one block plus the codec's internal state.
const blockSize = 16384

// Encode streams r through a Brotli encoder at the given quality (0-11)
// and writes the compressed bytes to w, returning the number of
// compressed bytes written.
func Encode(w io.Writer, r io.Reader, quality int) (int64, error) {
	counted := &countingWriter{w: w, max: -1}
	cw := brotli.NewWriterLevel(counted, quality)
	_, err := io.CopyBuffer(cw, r, make([]byte, blockSize))
	if err != nil {
		cw.Close()
		return counted.total, fmt.Errorf("brotli encode: %w", err)
	}
	if err := cw.Close(); err != nil {
		return counted.total, fmt.Errorf("brotli encode: finalizing: %w", err)
	}
	return counted.total, nil
}

// countingWriter wraps a writer to track bytes written and enforce
// decompressMax; a negative max disables the cap.
type countingWriter struct {
	w       io.Writer
	total   int64
	max     int64 // -1 = unlimited
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.max >= 0 && c.total+int64(len(p)) > c.max {
		return 0, boxerr.ErrTooMuchData
	}
	n, err := c.w.Write(p)
	c.total += int64(n)
	return n, err
}

// Decode streams a Brotli-compressed body (r) to w, enforcing decompressMax
// (a negative value disables the cap; this function is never called when
// the cap is 0, since that means "never decompress" at the scan-pipeline
// level). Returns the number of decompressed bytes written.
func Decode(w io.Writer, r io.Reader, decompressMax int64) (int64, error) {
	cw := &countingWriter{w: w, max: decompressMax}
	dr := brotli.NewReader(r)
	n, err := io.CopyBuffer(cw, dr, make([]byte, blockSize))
	if err != nil {
		if err == boxerr.ErrTooMuchData {
			return n, boxerr.ErrTooMuchData
		}
		return n, fmt.Errorf("brotli decode: %w", err)
	}
	return n, nil
}
