// Package box implements the forward-only BMFF box reader: frame-by-frame
// header parsing (including extended sizes and the implicit final-box
// length) and per-box windowed reads in either "full" (header + payload)
// or "payload" (payload only) mode.
//
// Adapted from the teacher's internal/box package
// (github.com/mrjoshuak/go-jpeg2000/internal/box/box.go), which modeled a
// single fixed JP2 box vocabulary with an io.Reader-backed Reader/Writer
// pair and the exact 8/16-byte header encode/decode rules this package
// generalizes: Box.Header()'s size==1 extended-length branch is this
// package's WriteBoxHeader, and Reader.ReadBox's size/type decode loop is
// this package's readHeader. The box-type vocabulary (ImageHeaderBox,
// ColorSpecBox, FileTypeBox, ...) is dropped because it belongs to JP2
// image-metadata decoding, which this engine never interprets.
package box

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/boxcutter-go/boxcutter/internal/boxerr"
	"github.com/boxcutter-go/boxcutter/internal/source"
)

const (
	smallHeaderSize = 8
	largeHeaderSize = 16
	// blockSize bounds the per-call copy buffer so per-scan memory stays
	// O(1) in file size.
	blockSize = 16384
)

// Type is a box's 4-byte ASCII type code.
type Type [4]byte

// String returns the 4-character type code.
func (t Type) String() string { return string(t[:]) }

// valid reports whether all four bytes are printable ASCII (0x20-0x7E),
// the only range BMFF permits for box types.
func (t Type) valid() bool {
	for _, b := range t {
		if b < 0x20 || b > 0x7E {
			return false
		}
	}
	return true
}

// TypeFromString builds a Type from a 4-character string. It panics if s
// is not exactly 4 bytes; callers constructing well-known literal types
// should use this only with compile-time-constant strings.
func TypeFromString(s string) Type {
	if len(s) != 4 {
		boxerr.Usage(fmt.Sprintf("box type %q is not 4 bytes", s))
	}
	var t Type
	copy(t[:], s)
	return t
}

// Header describes a box frame: its position, total length (header +
// payload), type, and whether the 16-byte extended-size form was used.
//
// A Length of 0 is the sentinel for "extends to end of file"; it is only
// valid for the final box in a stream.
type Header struct {
	Offset          int64
	Length          int64
	BoxType         Type
	HasExtendedSize bool
}

// HeaderBytes returns 8 or 16, the number of header bytes this box used.
func (h Header) HeaderBytes() int64 {
	if h.HasExtendedSize {
		return largeHeaderSize
	}
	return smallHeaderSize
}

// Implicit reports whether this box's length extends to end of file.
func (h Header) Implicit() bool { return h.Length == 0 }

// PayloadSize returns the payload length (Length minus header bytes). It
// is only meaningful when !Implicit().
func (h Header) PayloadSize() int64 { return h.Length - h.HeaderBytes() }

// WriteBoxHeader emits a box header to w per spec component 4.6:
//
//   - payloadSize < 0 writes the implicit (size=0, "to EOF") form.
//   - 8+payloadSize fitting in 32 bits writes the normal 8-byte header.
//   - otherwise writes the 16-byte extended form.
//
// It returns the number of header bytes written (8 or 16).
func WriteBoxHeader(w io.Writer, t Type, payloadSize int64) (int, error) {
	switch {
	case payloadSize < 0:
		var buf [smallHeaderSize]byte
		copy(buf[4:8], t[:])
		if _, err := w.Write(buf[:]); err != nil {
			return 0, fmt.Errorf("writing implicit-size header: %w", err)
		}
		return smallHeaderSize, nil

	case payloadSize <= 0xFFFFFFFF-smallHeaderSize:
		var buf [smallHeaderSize]byte
		binary.BigEndian.PutUint32(buf[0:4], uint32(smallHeaderSize+payloadSize))
		copy(buf[4:8], t[:])
		if _, err := w.Write(buf[:]); err != nil {
			return 0, fmt.Errorf("writing header: %w", err)
		}
		return smallHeaderSize, nil

	default:
		var buf [largeHeaderSize]byte
		binary.BigEndian.PutUint32(buf[0:4], 1)
		copy(buf[4:8], t[:])
		binary.BigEndian.PutUint64(buf[8:16], uint64(largeHeaderSize+payloadSize))
		if _, err := w.Write(buf[:]); err != nil {
			return 0, fmt.Errorf("writing extended header: %w", err)
		}
		return largeHeaderSize, nil
	}
}

// mode tracks which read contract the current box has committed to.
type mode int

const (
	modeNone mode = iota
	modeFull
	modePayload
)

// Reader is a single-use, forward-only cursor over a box stream. Exactly
// one of ReadCurrent/CopyCurrent ("full" mode) or ReadPayload/CopyPayload
// ("payload" mode) may be used per box; mixing them panics with a
// UsageError, matching spec component 4.2's per-box contract.
type Reader struct {
	src     source.ByteSource
	index   int
	started bool
	eof     bool
	cur     Header

	headerBuf  []byte // exact header bytes last read, replayed in full mode
	headerSent int

	mode        mode
	payloadRead int64 // payload bytes consumed from src for the current box
}

// NewReader creates a Reader over src.
func NewReader(src source.ByteSource) *Reader {
	return &Reader{src: src}
}

// Index returns the index assigned to the current box.
func (r *Reader) Index() int { return r.index - 1 }

// Current returns the header of the box the reader is positioned on. It
// is only valid after a successful NextBox call.
func (r *Reader) Current() Header { return r.cur }

// RawHeader returns the exact header bytes (8 or 16) as read from the
// stream for the current box, independent of full/payload mode. Callers
// that re-emit a box unchanged should write these bytes rather than
// re-encoding a header from Header's decoded fields, so that a
// non-canonical but valid encoding (an unnecessary extended-size header,
// or an implicit-size box that happened to use the extended form) is
// preserved verbatim instead of being normalized away.
func (r *Reader) RawHeader() []byte {
	out := make([]byte, len(r.headerBuf))
	copy(out, r.headerBuf)
	return out
}

// NextBox advances past any unread bytes of the prior box and parses the
// next header. ok is false once the stream is exhausted.
func (r *Reader) NextBox() (hdr Header, ok bool, err error) {
	if r.eof {
		return Header{}, false, nil
	}
	if r.started {
		if err := r.skipRemainder(); err != nil {
			return Header{}, false, err
		}
		if r.cur.Implicit() {
			// The implicit-size box must be the last one.
			r.eof = true
			return Header{}, false, nil
		}
	}

	hdr, ok, err = r.readHeader()
	if err != nil {
		return Header{}, false, err
	}
	if !ok {
		r.eof = true
		return Header{}, false, nil
	}

	r.started = true
	r.cur = hdr
	r.mode = modeNone
	r.headerSent = 0
	r.payloadRead = 0
	r.index++
	return hdr, true, nil
}

// skipRemainder discards whatever bytes of the current box were never
// consumed by the caller, positioning the source at the start of the
// next box's header.
func (r *Reader) skipRemainder() error {
	if r.cur.Implicit() {
		return nil
	}
	total := r.cur.PayloadSize()
	remaining := total - r.payloadRead
	if remaining <= 0 {
		return nil
	}
	if _, err := r.src.Seek(remaining, io.SeekCurrent); err != nil {
		return fmt.Errorf("skipping unread box bytes: %w", err)
	}
	r.payloadRead = total
	return nil
}

// readHeader reads one box header from r.src. ok is false at a clean EOF
// (zero bytes available before the header).
func (r *Reader) readHeader() (Header, bool, error) {
	offset := r.src.Tell()

	buf := make([]byte, smallHeaderSize)
	n, err := io.ReadFull(r.src, buf)
	if err != nil {
		if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
			return Header{}, false, nil
		}
		return Header{}, false, fmt.Errorf("%w: reading box header: %v", boxerr.ErrInvalidBmff, err)
	}

	if r.index == 0 && buf[0] == 0xFF && buf[1] == 0x0A {
		var t Type
		copy(t[:], buf[4:8])
		if !t.valid() {
			return Header{}, false, boxerr.ErrRawJxl
		}
	}

	rawSize := binary.BigEndian.Uint32(buf[0:4])
	var t Type
	copy(t[:], buf[4:8])

	hdr := Header{Offset: offset, BoxType: t}
	headerBuf := make([]byte, smallHeaderSize, largeHeaderSize)
	copy(headerBuf, buf)

	switch rawSize {
	case 1:
		ext := make([]byte, 8)
		if _, err := io.ReadFull(r.src, ext); err != nil {
			return Header{}, false, fmt.Errorf("%w: reading extended size: %v", boxerr.ErrInvalidBmff, err)
		}
		hdr.HasExtendedSize = true
		hdr.Length = int64(binary.BigEndian.Uint64(ext))
		headerBuf = append(headerBuf, ext...)
	case 0:
		hdr.Length = 0
	default:
		hdr.Length = int64(rawSize)
	}

	if !t.valid() {
		return Header{}, false, fmt.Errorf("%w: box type %q at offset %d is not printable ASCII", boxerr.ErrInvalidBmff, t, offset)
	}

	if hdr.Length > 0 && hdr.Length < hdr.HeaderBytes() {
		return Header{}, false, fmt.Errorf("%w: box at offset %d declares length %d shorter than header", boxerr.ErrInvalidBmff, offset, hdr.Length)
	}

	r.headerBuf = headerBuf
	return hdr, true, nil
}

func (r *Reader) setMode(m mode) {
	if r.mode == modeNone {
		r.mode = m
		return
	}
	if r.mode != m {
		boxerr.Usage("cannot mix full and payload reads on the same box")
	}
}

// remainingPayload returns how many more payload bytes may be read, or -1
// when the current box is the implicit-size final box.
func (r *Reader) remainingPayload() int64 {
	if r.cur.Implicit() {
		return -1
	}
	return r.cur.PayloadSize() - r.payloadRead
}

// ReadCurrent reads up to n bytes from the current box, including any
// unsent header bytes. Pairs with CopyCurrent (full mode).
func (r *Reader) ReadCurrent(n int) ([]byte, error) {
	r.setMode(modeFull)
	out := make([]byte, 0, n)

	if r.headerSent < len(r.headerBuf) {
		take := len(r.headerBuf) - r.headerSent
		if take > n {
			take = n
		}
		out = append(out, r.headerBuf[r.headerSent:r.headerSent+take]...)
		r.headerSent += take
		n -= take
	}
	if n == 0 {
		return out, nil
	}
	payload, err := r.readPayloadBytes(n)
	out = append(out, payload...)
	return out, err
}

// CopyCurrent streams up to n bytes from the current box (header +
// payload) to sink, in blockSize chunks, and returns the number of bytes
// written.
func (r *Reader) CopyCurrent(n int64, sink io.Writer) (int64, error) {
	r.setMode(modeFull)
	var written int64

	if r.headerSent < len(r.headerBuf) {
		avail := int64(len(r.headerBuf) - r.headerSent)
		take := avail
		if take > n {
			take = n
		}
		w, err := sink.Write(r.headerBuf[r.headerSent : int64(r.headerSent)+take])
		r.headerSent += w
		written += int64(w)
		n -= int64(w)
		if err != nil {
			return written, fmt.Errorf("writing header bytes: %w", err)
		}
	}
	if n <= 0 {
		return written, nil
	}
	n2, err := r.copyPayloadBytes(n, sink)
	return written + n2, err
}

// ReadPayload reads up to n bytes from the current box's payload,
// excluding the header. Pairs with CopyPayload (payload mode).
func (r *Reader) ReadPayload(n int) ([]byte, error) {
	r.setMode(modePayload)
	return r.readPayloadBytes(n)
}

// CopyPayload streams up to n bytes of the current box's payload to sink.
func (r *Reader) CopyPayload(n int64, sink io.Writer) (int64, error) {
	r.setMode(modePayload)
	return r.copyPayloadBytes(n, sink)
}

// SeekPayload skips n bytes of the current box's payload without
// returning them.
func (r *Reader) SeekPayload(n int64) error {
	r.setMode(modePayload)
	remaining := r.remainingPayload()
	if remaining >= 0 && n > remaining {
		n = remaining
	}
	if _, err := r.src.Seek(n, io.SeekCurrent); err != nil {
		return fmt.Errorf("seeking payload: %w", err)
	}
	r.payloadRead += n
	return nil
}

func (r *Reader) readPayloadBytes(n int) ([]byte, error) {
	remaining := r.remainingPayload()
	if remaining >= 0 && int64(n) > remaining {
		n = int(remaining)
	}
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r.src, buf)
	r.payloadRead += int64(read)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return buf[:read], nil
		}
		return buf[:read], fmt.Errorf("reading payload: %w", err)
	}
	return buf[:read], nil
}

func (r *Reader) copyPayloadBytes(n int64, sink io.Writer) (int64, error) {
	remaining := r.remainingPayload()
	if remaining >= 0 && n > remaining {
		n = remaining
	}
	var total int64
	buf := make([]byte, blockSize)
	for n > 0 {
		chunk := int64(len(buf))
		if chunk > n {
			chunk = n
		}
		read, rerr := io.ReadFull(r.src, buf[:chunk])
		if read > 0 {
			w, werr := sink.Write(buf[:read])
			total += int64(w)
			r.payloadRead += int64(w)
			n -= int64(w)
			if werr != nil {
				return total, fmt.Errorf("writing payload: %w", werr)
			}
		}
		if rerr != nil {
			if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
				break
			}
			return total, fmt.Errorf("reading payload: %w", rerr)
		}
	}
	return total, nil
}

// FinalBoxSize determines the total length of the current box when it is
// the implicit-size (length==0) final box, by draining any remaining
// payload to EOF (or, when the source already knows its total size and no
// payload has been read yet, computing it directly). It is a UsageError
// to call this on a box with an explicit length.
func (r *Reader) FinalBoxSize() (int64, error) {
	if !r.cur.Implicit() {
		boxerr.Usage("FinalBoxSize called on a box with an explicit length")
	}
	if total, known := r.src.TotalSize(); known && r.payloadRead == 0 {
		payload := total - r.cur.Offset - r.cur.HeaderBytes()
		if payload >= 0 {
			r.payloadRead = payload
			return r.cur.HeaderBytes() + payload, nil
		}
	}

	r.setMode(modePayload)
	buf := make([]byte, blockSize)
	for {
		n, err := r.src.Read(buf)
		r.payloadRead += int64(n)
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, fmt.Errorf("draining to determine final box size: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return r.cur.HeaderBytes() + r.payloadRead, nil
}
