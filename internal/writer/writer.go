// Package writer implements the box engine's output side (spec
// component 4.6): emitting headers, and deferred-size boxes whose
// length is only known after their payload has been written, with
// seek-back fixup on seekable sinks.
//
// Grounded the same way internal/box is: the teacher's Box.Header/Bytes
// encode step is internal/box's WriteBoxHeader, which this package calls; this
// package adds the part the teacher never needed because JP2 boxes are
// always built fully in memory before being written — a sink that may or
// may not support seeking back to patch a size after the fact.
package writer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/boxcutter-go/boxcutter/internal/box"
	"github.com/boxcutter-go/boxcutter/internal/boxerr"
)

// Sink is the output side's capability interface, mirroring
// internal/source.ByteSource: a plain io.Writer plus optional seeking.
type Sink interface {
	io.Writer
	Seekable() bool
	Seek(offset int64, whence int) (int64, error)
}

// Writer wraps a Sink with the deferred-header / seek-back-fixup
// protocol that spec component 4.4's compress/decompress actions need.
//
// Once a box has been committed with an implicit (to-EOF) size — either
// because the sink cannot seek, or because a seekable sink's box turned
// out to exceed the 32-bit size field and could not be patched — the
// Writer enters a terminal state: spec.md's open question about whether
// that failure is an UnseekableOutput or a distinct "oversize" error is
// resolved here by using boxerr.ErrUnseekableOutput uniformly for both,
// since both mean the same thing operationally (no more box data may
// follow on this stream).
type Writer struct {
	sink     Sink
	terminal bool
}

// New wraps sink.
func New(sink Sink) *Writer { return &Writer{sink: sink} }

// Write emits raw bytes directly to the underlying sink, bypassing any
// header framing. Used by the scan pipeline to re-emit already-peeked
// payload bytes and to stream a box's payload through unchanged; it is
// not gated on Terminal, since it is only ever called to fill in the
// payload of a header (possibly implicit-size) that WriteHeader or
// BeginDeferred already committed.
func (w *Writer) Write(p []byte) (int, error) {
	return w.sink.Write(p)
}

// WriteHeader writes a box header with a known payload size (spec
// component 4.6). Use for the common case where the size is known before
// any payload bytes are written.
func (w *Writer) WriteHeader(t box.Type, payloadSize int64) (int, error) {
	if w.terminal {
		return 0, boxerr.ErrUnseekableOutput
	}
	n, err := box.WriteBoxHeader(w.sink, t, payloadSize)
	if payloadSize < 0 {
		w.terminal = true
	}
	return n, err
}

// WriteRawHeader writes raw header bytes verbatim (as returned by
// box.Reader.RawHeader), bypassing WriteBoxHeader's re-encoding. Used by
// verbatim-copy paths so a box's original encoding — including a
// non-canonical extended-size header — round-trips byte-exact rather
// than being normalized to the canonical form for its declared length.
// implicit marks whether the header being replayed used the implicit
// (to-EOF) size, which still puts the Writer into the terminal state
// WriteHeader would.
func (w *Writer) WriteRawHeader(raw []byte, implicit bool) (int, error) {
	if w.terminal {
		return 0, boxerr.ErrUnseekableOutput
	}
	n, err := w.sink.Write(raw)
	if implicit {
		w.terminal = true
	}
	return n, err
}

// Deferred is a header written with a placeholder size, to be finalized
// once the payload's length is known.
type Deferred struct {
	w        *Writer
	offset   int64
	typ      box.Type
	implicit bool // header already committed as implicit-size; Finish is a no-op
}

// BeginDeferred writes an 8-byte placeholder header (size field zero)
// for t and returns a handle to finalize once the payload is written.
//
// If the sink cannot seek, the placeholder is permanent: the box is
// emitted with an implicit (to-EOF) size and the Writer becomes
// terminal, matching spec component 4.4's "this must be the last box
// written" rule.
func (w *Writer) BeginDeferred(t box.Type) (*Deferred, error) {
	if w.terminal {
		return nil, boxerr.ErrUnseekableOutput
	}
	if !w.sink.Seekable() {
		if _, err := box.WriteBoxHeader(w.sink, t, -1); err != nil {
			return nil, err
		}
		w.terminal = true
		return &Deferred{w: w, typ: t, implicit: true}, nil
	}

	offset, err := w.sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locating deferred header offset: %w", err)
	}
	if _, err := box.WriteBoxHeader(w.sink, t, -1); err != nil {
		return nil, err
	}
	return &Deferred{w: w, offset: offset, typ: t}, nil
}

// Write emits raw bytes as the deferred box's payload, directly to the
// underlying sink. The caller must track how many bytes it wrote so it
// can pass the total to Finish.
func (d *Deferred) Write(p []byte) (int, error) {
	return d.w.sink.Write(p)
}

// PayloadOffset returns the sink position where d's payload begins (the
// header offset plus the 8-byte placeholder header's width). Only valid
// on a seekable sink, which is the only case BeginDeferred assigns a
// usable offset for; used by callers that need to seek back into the
// payload itself (not just the size field), such as jxlp run merging.
func (d *Deferred) PayloadOffset() int64 { return d.offset + 8 }

// Finish patches d's header with the now-known payloadSize. On a
// non-seekable sink this is a no-op (the header was already committed as
// implicit-size) and payloadSize is ignored. On a seekable sink whose
// final size exceeds the 32-bit size field, the placeholder is left as
// zero (implicit-size) and the Writer becomes terminal: this is only a
// valid stream if the box genuinely turns out to be the last one, which
// the caller discovers by the next NextBox call reporting end of stream;
// any further write attempt after that correctly fails via the terminal
// check above.
func (d *Deferred) Finish(payloadSize int64) error {
	if d.implicit {
		return nil
	}
	total := 8 + payloadSize
	if total > 0xFFFFFFFF {
		d.w.terminal = true
		return nil
	}

	end, err := d.w.sink.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("locating stream end before size fixup: %w", err)
	}
	if _, err := d.w.sink.Seek(d.offset, io.SeekStart); err != nil {
		return fmt.Errorf("seeking back to patch box size: %w", err)
	}
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(total))
	if _, err := d.w.sink.Write(buf[:]); err != nil {
		return fmt.Errorf("writing patched size: %w", err)
	}
	if _, err := d.w.sink.Seek(end, io.SeekStart); err != nil {
		return fmt.Errorf("seeking back to stream end after size fixup: %w", err)
	}
	return nil
}

// Terminal reports whether the writer has committed an implicit-size box
// and must not be written to again.
func (w *Writer) Terminal() bool { return w.terminal }

// SetTerminal marks the writer terminal without writing anything, so the
// very next header write fails with boxerr.ErrUnseekableOutput. No code
// in this module calls it; Finish sets the terminal state itself when an
// oversized deferred box falls back to implicit-size.
func (w *Writer) SetTerminal() { w.terminal = true }
