// Package jxl implements the JPEG XL container state machines (spec
// components 4.7-4.9): extracting a raw codestream from a container,
// assembling one, and merging consecutive jxlp runs.
//
// Grounded in the teacher's fixed-signature box trio
// (internal/box/box.go: CreateFileTypeBox, CreateCodestreamBox,
// WriteSignature in the JP2 case), generalized from the single JP2
// signature and jp2c box to the JXL signature and the jxlc/jxlp run
// state machine spec component 4.10 describes.
package jxl

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/boxcutter-go/boxcutter/internal/box"
	"github.com/boxcutter-go/boxcutter/internal/boxerr"
	"github.com/boxcutter-go/boxcutter/internal/source"
	"github.com/boxcutter-go/boxcutter/internal/writer"
)

// ContainerSignature is the 12-byte magic that opens a JXL container.
var ContainerSignature = [12]byte{0x00, 0x00, 0x00, 0x0C, 0x4A, 0x58, 0x4C, 0x20, 0x0D, 0x0A, 0x87, 0x0A}

// RawCodestreamMagic is the 2-byte magic that opens a bare (containerless)
// JXL codestream.
var RawCodestreamMagic = [2]byte{0xFF, 0x0A}

var (
	typeFtyp = box.TypeFromString("ftyp")
	typeJxlc = box.TypeFromString("jxlc")
	typeJxlp = box.TypeFromString("jxlp")
	typeJbrd = box.TypeFromString("jbrd")
	typeJxll = box.TypeFromString("jxll")
)

// jxlpTerminal is the sequence-number MSB marking a jxlp box as the last
// part of the run (spec component 4.7).
const jxlpTerminal = uint32(1) << 31

// Warning is a non-fatal condition surfaced by the extractor (spec
// component 4.7's jbrd/jxll>5 notices and the "last jxlp not marked
// terminal" notice). The CLI prints these to stderr; library callers may
// inspect or ignore them.
type Warning struct {
	Msg string
}

func (w Warning) Error() string { return w.Msg }

// ExtractCodestream reads a JXL container from src (which must begin
// with ContainerSignature) and writes the reassembled raw codestream to
// sink, per spec component 4.7's state machine. It returns any non-fatal
// Warnings collected along the way.
func ExtractCodestream(src source.ByteSource, sink io.Writer) ([]Warning, error) {
	var sig [12]byte
	if _, err := io.ReadFull(src, sig[:]); err != nil {
		return nil, fmt.Errorf("%w: reading container signature: %v", boxerr.ErrInvalidJxlContainer, err)
	}
	if sig != ContainerSignature {
		return nil, fmt.Errorf("%w: missing JXL container signature", boxerr.ErrInvalidJxlContainer)
	}

	r := box.NewReader(src)

	var (
		warnings   []Warning
		sawJxlc    bool
		sawJxlp    bool
		nextJxlp   int64 = 0
		jxlpEnded  bool
		lastJxlpWasTerminal bool
	)

	for {
		hdr, ok, err := r.NextBox()
		if err != nil {
			return warnings, err
		}
		if !ok {
			break
		}

		switch hdr.BoxType {
		case typeJxlc:
			if sawJxlp || sawJxlc {
				return warnings, fmt.Errorf("%w: jxlc after jxlp or a prior jxlc", boxerr.ErrInvalidJxlContainer)
			}
			sawJxlc = true
			if _, err := r.CopyPayload(1<<62, sink); err != nil {
				return warnings, fmt.Errorf("copying jxlc payload: %w", err)
			}

		case typeJxlp:
			if sawJxlc || jxlpEnded {
				return warnings, fmt.Errorf("%w: unexpected jxlp box", boxerr.ErrInvalidJxlContainer)
			}
			seqBytes, err := r.ReadPayload(4)
			if err != nil {
				return warnings, fmt.Errorf("reading jxlp sequence number: %w", err)
			}
			if len(seqBytes) != 4 {
				return warnings, fmt.Errorf("%w: jxlp box too short for a sequence number", boxerr.ErrInvalidJxlContainer)
			}
			raw := binary.BigEndian.Uint32(seqBytes)
			terminal := raw&jxlpTerminal != 0
			seq := int64(raw &^ jxlpTerminal)
			if seq != nextJxlp {
				return warnings, fmt.Errorf("%w: jxlp out of sequence: expected %d, got %d", boxerr.ErrInvalidJxlContainer, nextJxlp, seq)
			}
			sawJxlp = true
			lastJxlpWasTerminal = terminal
			if terminal {
				jxlpEnded = true
			} else {
				nextJxlp++
			}
			if _, err := r.CopyPayload(1<<62, sink); err != nil {
				return warnings, fmt.Errorf("copying jxlp payload: %w", err)
			}

		case typeJbrd:
			warnings = append(warnings, Warning{Msg: "JPEG reconstruction data present: lossless JPEG reconstruction will not be possible from the raw codestream output"})

		case typeJxll:
			level, err := r.ReadPayload(1)
			if err != nil {
				return warnings, fmt.Errorf("reading jxll level: %w", err)
			}
			if len(level) == 1 && level[0] > 5 {
				warnings = append(warnings, Warning{Msg: fmt.Sprintf("codestream declares level %d (> 5): this container may use features a raw level-5 extractor cannot represent", level[0])})
			}
		}
	}

	if !sawJxlc && !sawJxlp {
		return warnings, fmt.Errorf("%w: no jxlc or jxlp box found", boxerr.ErrInvalidJxlContainer)
	}
	if sawJxlp && !lastJxlpWasTerminal {
		warnings = append(warnings, Warning{Msg: "the last jxlp box was not marked as the terminal part of the sequence"})
	}
	return warnings, nil
}

// WrapOptions configures AssembleContainer (spec component 4.8).
type WrapOptions struct {
	// Level, if non-nil, adds a jxll box declaring this codestream level.
	Level *byte
	// Splits, if non-empty, emits multiple jxlp boxes split at these
	// byte offsets (relative to the start of the codestream, sorted
	// ascending) instead of a single jxlc box.
	Splits []int64
}

// AssembleContainer wraps a raw codestream (codestream, which must begin
// with RawCodestreamMagic) from src into a JXL container written to sink,
// per spec component 4.8.
func AssembleContainer(src source.ByteSource, sink writer.Sink, opts WrapOptions) error {
	var magic [2]byte
	if _, err := io.ReadFull(src, magic[:]); err != nil {
		return fmt.Errorf("reading codestream magic: %w", err)
	}
	if magic != RawCodestreamMagic {
		return fmt.Errorf("%w: input does not begin with the raw JXL codestream magic", boxerr.ErrInvalidBmff)
	}

	if _, err := sink.Write(ContainerSignature[:]); err != nil {
		return fmt.Errorf("writing container signature: %w", err)
	}

	// ftyp brand box: 00 00 00 14 66 74 79 70 6A 78 6C 20 00 00 00 00 6A 78 6C 20
	ftypBody := []byte{0x6A, 0x78, 0x6C, 0x20, 0x00, 0x00, 0x00, 0x00, 0x6A, 0x78, 0x6C, 0x20}
	if _, err := box.WriteBoxHeader(sink, typeFtyp, int64(len(ftypBody))); err != nil {
		return fmt.Errorf("writing ftyp box: %w", err)
	}
	if _, err := sink.Write(ftypBody); err != nil {
		return fmt.Errorf("writing ftyp body: %w", err)
	}

	if opts.Level != nil {
		if _, err := box.WriteBoxHeader(sink, typeJxll, 1); err != nil {
			return fmt.Errorf("writing jxll box: %w", err)
		}
		if _, err := sink.Write([]byte{*opts.Level}); err != nil {
			return fmt.Errorf("writing jxll level: %w", err)
		}
	}

	w := writer.New(sink)
	if len(opts.Splits) == 0 {
		return assembleSingleJxlc(src, w, magic)
	}
	return assembleSplitJxlp(src, w, magic, opts.Splits)
}

// assembleSingleJxlc emits one jxlc box containing the whole remaining
// codestream, using the source's known total size when available.
func assembleSingleJxlc(src source.ByteSource, w *writer.Writer, magic [2]byte) error {
	var payloadSize int64 = -1
	if total, known := src.TotalSize(); known {
		pos := src.Tell()
		payloadSize = total - pos + int64(len(magic))
	}

	if payloadSize >= 0 {
		if _, err := w.WriteHeader(typeJxlc, payloadSize); err != nil {
			return fmt.Errorf("writing jxlc header: %w", err)
		}
		if _, err := w.Write(magic[:]); err != nil {
			return fmt.Errorf("writing codestream magic: %w", err)
		}
		if _, err := io.Copy(w, src); err != nil {
			return fmt.Errorf("copying codestream: %w", err)
		}
		return nil
	}

	d, err := w.BeginDeferred(typeJxlc)
	if err != nil {
		return fmt.Errorf("beginning jxlc box: %w", err)
	}
	n, err := d.Write(magic[:])
	total := int64(n)
	if err != nil {
		return fmt.Errorf("writing codestream magic: %w", err)
	}
	copied, err := io.Copy(d, src)
	total += copied
	if err != nil {
		return fmt.Errorf("copying codestream: %w", err)
	}
	if err := d.Finish(total); err != nil {
		return fmt.Errorf("finalizing jxlc box: %w", err)
	}
	return nil
}

// assembleSplitJxlp reads the full remaining codestream into memory (the
// split offsets need random access into it) and emits one jxlp box per
// segment, sequence-numbered from zero with the MSB set on the last one.
func assembleSplitJxlp(src source.ByteSource, w *writer.Writer, magic [2]byte, splits []int64) error {
	rest, err := io.ReadAll(src)
	if err != nil {
		return fmt.Errorf("reading codestream: %w", err)
	}
	full := append(append([]byte{}, magic[:]...), rest...)

	// The whole codestream is already buffered, so every segment's final
	// size is known up front; no back-patching is needed even for the
	// last jxlp box. Splits are sorted ascending (spec component 4.8) and
	// clamped to the codestream's length, matching the original's
	// sortedSplits and ruling out a negative-length or out-of-range
	// segment from an adversarial --splits value.
	sorted := append([]int64{}, splits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	offsets := make([]int64, 0, len(sorted)+2)
	offsets = append(offsets, 0)
	for _, off := range sorted {
		if off < 0 {
			off = 0
		}
		if off > int64(len(full)) {
			off = int64(len(full))
		}
		offsets = append(offsets, off)
	}
	offsets = append(offsets, int64(len(full)))
	for i := 0; i < len(offsets)-1; i++ {
		segment := full[offsets[i]:offsets[i+1]]
		seq := uint32(i)
		if i == len(offsets)-2 {
			seq |= jxlpTerminal
		}
		var seqBytes [4]byte
		binary.BigEndian.PutUint32(seqBytes[:], seq)
		payloadSize := int64(len(seqBytes)) + int64(len(segment))

		if _, err := w.WriteHeader(typeJxlp, payloadSize); err != nil {
			return fmt.Errorf("writing jxlp box %d: %w", i, err)
		}
		if _, err := w.Write(seqBytes[:]); err != nil {
			return fmt.Errorf("writing jxlp sequence number %d: %w", i, err)
		}
		if _, err := w.Write(segment); err != nil {
			return fmt.Errorf("writing jxlp segment %d: %w", i, err)
		}
	}
	return nil
}

// MergeJxlp rewrites src (a full JXL container) to sink, concatenating
// each run of consecutive jxlp boxes into a single jxlp box, preserving
// the terminal marker of the last box in each run and leaving all other
// boxes untouched (spec component 4.9). The sink must support seeking
// back, since each merged run's size is only known once the run ends.
func MergeJxlp(src source.ByteSource, sink writer.Sink) error {
	if !sink.Seekable() {
		return boxerr.ErrUnseekableOutput
	}

	var sig [12]byte
	if _, err := io.ReadFull(src, sig[:]); err != nil {
		return fmt.Errorf("%w: reading container signature: %v", boxerr.ErrInvalidJxlContainer, err)
	}
	if sig != ContainerSignature {
		return fmt.Errorf("%w: missing JXL container signature", boxerr.ErrInvalidJxlContainer)
	}
	if _, err := sink.Write(sig[:]); err != nil {
		return fmt.Errorf("writing container signature: %w", err)
	}

	r := box.NewReader(src)
	w := writer.New(sink)

	var run *writer.Deferred
	var runTotal int64
	var runSeq uint32
	flushRun := func() error {
		if run == nil {
			return nil
		}
		if err := run.Finish(runTotal); err != nil {
			return fmt.Errorf("finalizing merged jxlp run: %w", err)
		}
		run = nil
		return nil
	}

	for {
		hdr, ok, err := r.NextBox()
		if err != nil {
			return err
		}
		if !ok {
			break
		}

		if hdr.BoxType != typeJxlp {
			if err := flushRun(); err != nil {
				return err
			}
			if err := copyBoxVerbatim(r, w, hdr); err != nil {
				return err
			}
			continue
		}

		seqBytes, err := r.ReadPayload(4)
		if err != nil || len(seqBytes) != 4 {
			return fmt.Errorf("%w: jxlp box too short for a sequence number", boxerr.ErrInvalidJxlContainer)
		}
		raw := binary.BigEndian.Uint32(seqBytes)
		terminal := raw&jxlpTerminal != 0

		if run == nil {
			d, err := w.BeginDeferred(typeJxlp)
			if err != nil {
				return fmt.Errorf("beginning merged jxlp run: %w", err)
			}
			run = d
			runSeq = raw &^ jxlpTerminal
			var outSeq [4]byte
			binary.BigEndian.PutUint32(outSeq[:], runSeq)
			n, err := run.Write(outSeq[:])
			runTotal = int64(n)
			if err != nil {
				return fmt.Errorf("writing merged jxlp sequence number: %w", err)
			}
		}

		n, err := r.CopyPayload(1<<62, run)
		runTotal += n
		if err != nil {
			return fmt.Errorf("copying jxlp payload into merged run: %w", err)
		}

		if terminal {
			// Patch the terminal marker into the sequence number we
			// already wrote: rewind to the run's sequence field.
			if err := patchTerminalSeq(sink, run, runSeq); err != nil {
				return err
			}
			if err := flushRun(); err != nil {
				return err
			}
		}
	}
	return flushRun()
}

// patchTerminalSeq sets the MSB of a merged run's already-written
// sequence number once the run turns out to end in a terminal jxlp box.
// It is only reachable when sink.Seekable() (MergeJxlp checks this up
// front), so the seek-back it performs always succeeds.
func patchTerminalSeq(sink writer.Sink, run *writer.Deferred, seq uint32) error {
	end, err := sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locating stream position before terminal-marker patch: %w", err)
	}
	if _, err := sink.Seek(run.PayloadOffset(), io.SeekStart); err != nil {
		return fmt.Errorf("seeking back to patch terminal marker: %w", err)
	}
	var marked [4]byte
	binary.BigEndian.PutUint32(marked[:], seq|jxlpTerminal)
	if _, err := sink.Write(marked[:]); err != nil {
		return fmt.Errorf("writing terminal marker: %w", err)
	}
	if _, err := sink.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("seeking back to stream end after terminal-marker patch: %w", err)
	}
	return nil
}

// copyBoxVerbatim re-emits a non-jxlp box unchanged, including its
// original header encoding.
func copyBoxVerbatim(r *box.Reader, w *writer.Writer, hdr box.Header) error {
	if _, err := w.WriteRawHeader(r.RawHeader(), hdr.Implicit()); err != nil {
		return fmt.Errorf("writing header at offset %d: %w", hdr.Offset, err)
	}
	if _, err := r.CopyPayload(1<<62, w); err != nil {
		return fmt.Errorf("copying payload at offset %d: %w", hdr.Offset, err)
	}
	return nil
}
