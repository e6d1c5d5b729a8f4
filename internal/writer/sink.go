package writer

import (
	"fmt"
	"io"
	"os"
)

// fileSink wraps an *os.File, which supports seeking natively.
type fileSink struct{ f *os.File }

// NewFileSink wraps f as a seekable Sink.
func NewFileSink(f *os.File) Sink { return &fileSink{f: f} }

func (s *fileSink) Write(p []byte) (int, error) { return s.f.Write(p) }
func (s *fileSink) Seekable() bool              { return true }
func (s *fileSink) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.f.Seek(offset, whence)
	if err != nil {
		return 0, fmt.Errorf("seeking file sink: %w", err)
	}
	return pos, nil
}

// streamSink wraps an arbitrary io.Writer (typically stdout or a pipe)
// that cannot seek.
type streamSink struct{ w io.Writer }

// NewStreamSink wraps w as a non-seekable Sink.
func NewStreamSink(w io.Writer) Sink { return &streamSink{w: w} }

func (s *streamSink) Write(p []byte) (int, error)            { return s.w.Write(p) }
func (s *streamSink) Seekable() bool                         { return false }
func (s *streamSink) Seek(offset int64, whence int) (int64, error) {
	return 0, fmt.Errorf("stream sink does not support seeking")
}

// BufferSink is an in-memory, seekable Sink backed by a growable byte
// slice, analogous to bytes.Buffer but supporting writes at an earlier
// position (needed for the size-fixup seek-back).
type BufferSink struct {
	buf []byte
	pos int64
}

// NewBufferSink creates an empty BufferSink.
func NewBufferSink() *BufferSink { return &BufferSink{} }

// Bytes returns the accumulated output.
func (s *BufferSink) Bytes() []byte { return s.buf }

func (s *BufferSink) Write(p []byte) (int, error) {
	need := s.pos + int64(len(p))
	if need > int64(len(s.buf)) {
		grown := make([]byte, need)
		copy(grown, s.buf)
		s.buf = grown
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += int64(n)
	return n, nil
}

func (s *BufferSink) Seekable() bool { return true }

func (s *BufferSink) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = int64(len(s.buf)) + offset
	default:
		return 0, fmt.Errorf("buffer sink: invalid whence %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("buffer sink: negative position %d", target)
	}
	s.pos = target
	return s.pos, nil
}
