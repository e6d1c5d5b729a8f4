// Package source implements the forward-only byte stream abstraction the
// box engine reads from: ByteSource and the CatSource that prepends
// buffered "peeked" bytes back onto a live stream.
//
// The shape is adapted from the teacher's bufio.Reader-wrapping decoder
// (mrjoshuak/go-jpeg2000 decoder.go: newDecoder) generalized from a single
// concrete *bufio.Reader field into an interface with optional seek and
// size capabilities, plus the offset-tracking cursor helpers in
// mycophonic/saprobe-alac's internal/mp4 package (boxInfo.seekToEnd and
// friends), which is where the forward-seek-by-read-discard idiom for a
// non-seekable tail comes from.
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/boxcutter-go/boxcutter/internal/boxerr"
)

// ByteSource is a read-only byte stream with optional seek and size
// capabilities. Implementations that cannot seek still accept forward
// Seek calls, realized as read-and-discard.
type ByteSource interface {
	// Read reads up to len(p) bytes. It may return fewer bytes than
	// requested at EOF, per io.Reader.
	Read(p []byte) (int, error)

	// Tell returns the current byte offset from the start of the
	// logical stream.
	Tell() int64

	// Seekable reports whether Seek can move backward.
	Seekable() bool

	// Seek repositions the stream. whence follows io.Seeker. A forward
	// seek is always permitted (by reading and discarding when the
	// underlying stream cannot seek); a backward seek on a non-seekable
	// stream returns boxerr.ErrUnseekableInput.
	Seek(offset int64, whence int) (int64, error)

	// TotalSize returns the stream's total byte length and true when
	// known (e.g. derived from a regular file's stat), or (0, false)
	// when the size cannot be determined in advance.
	TotalSize() (int64, bool)
}

// fileSource wraps an *os.File, the common case where both Seek and
// TotalSize are cheap and exact.
type fileSource struct {
	f    *os.File
	size int64
	known bool
}

// NewFile wraps f as a ByteSource, deriving TotalSize from a stat call
// when f refers to a regular file.
func NewFile(f *os.File) ByteSource {
	fs := &fileSource{f: f}
	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
		fs.size = info.Size()
		fs.known = true
	}
	return fs
}

func (s *fileSource) Read(p []byte) (int, error) { return s.f.Read(p) }

func (s *fileSource) Tell() int64 {
	pos, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return -1
	}
	return pos
}

func (s *fileSource) Seekable() bool { return true }

func (s *fileSource) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.f.Seek(offset, whence)
	if err != nil {
		return 0, fmt.Errorf("seeking file source: %w", err)
	}
	return pos, nil
}

func (s *fileSource) TotalSize() (int64, bool) { return s.size, s.known }

// streamSource wraps an arbitrary io.Reader (typically stdin) that offers
// neither seeking nor a known size. Forward seeks are satisfied by
// reading and discarding; any backward seek fails.
type streamSource struct {
	r      io.Reader
	offset int64
}

// NewStream wraps r as a non-seekable ByteSource with unknown size.
func NewStream(r io.Reader) ByteSource {
	return &streamSource{r: r}
}

func (s *streamSource) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	s.offset += int64(n)
	return n, err
}

func (s *streamSource) Tell() int64 { return s.offset }

func (s *streamSource) Seekable() bool { return false }

func (s *streamSource) Seek(offset int64, whence int) (int64, error) {
	return seekByDiscard(s, s.offset, offset, whence)
}

func (s *streamSource) TotalSize() (int64, bool) { return 0, false }

// bufferSource wraps an in-memory byte slice: seekable, with a known
// size, and never produces an I/O error.
type bufferSource struct {
	data []byte
	pos  int64
}

// NewBuffer wraps data as a seekable ByteSource.
func NewBuffer(data []byte) ByteSource {
	return &bufferSource{data: data}
}

func (s *bufferSource) Read(p []byte) (int, error) {
	if s.pos >= int64(len(s.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += int64(n)
	return n, nil
}

func (s *bufferSource) Tell() int64 { return s.pos }

func (s *bufferSource) Seekable() bool { return true }

func (s *bufferSource) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = s.pos + offset
	case io.SeekEnd:
		target = int64(len(s.data)) + offset
	default:
		return 0, fmt.Errorf("buffer source: invalid whence %d", whence)
	}
	if target < 0 {
		return 0, fmt.Errorf("buffer source: negative position %d", target)
	}
	s.pos = target
	return s.pos, nil
}

func (s *bufferSource) TotalSize() (int64, bool) { return int64(len(s.data)), true }

// seekByDiscard implements forward-only seeking for a non-seekable
// ByteSource by reading and throwing away the skipped bytes. offset/whence
// follow io.Seeker; any request that resolves to a position behind the
// current offset fails with boxerr.ErrUnseekableInput.
func seekByDiscard(r io.Reader, current, offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = current + offset
	default:
		return 0, fmt.Errorf("seeking non-seekable source: whence %d unsupported", whence)
	}
	if target < current {
		return current, boxerr.ErrUnseekableInput
	}
	remaining := target - current
	var discard [32 * 1024]byte
	for remaining > 0 {
		n := int64(len(discard))
		if remaining < n {
			n = remaining
		}
		read, err := r.Read(discard[:n])
		remaining -= int64(read)
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, fmt.Errorf("discarding during forward seek: %w", err)
		}
	}
	return target - remaining, nil
}

// CatSource composes an ordered list of inline byte buffers with an
// underlying live stream into one logical stream, consuming the buffers
// first. It is used to re-introduce bytes already peeked from a live
// stream (e.g. the 2-byte raw-codestream magic look-ahead) without
// requiring the tail to support seeking.
//
// CatSource owns the embedded buffers outright but only borrows the tail
// stream; closing or exhausting a CatSource has no effect on the tail's
// lifecycle beyond having read from it.
type CatSource struct {
	bufs   [][]byte
	bufOff int // consumed bytes within bufs[0]
	tail   ByteSource
	offset int64
}

// NewCatSource builds a CatSource that yields the concatenation of bufs
// followed by tail.
func NewCatSource(bufs [][]byte, tail ByteSource) *CatSource {
	// Drop any already-empty buffers up front so Read never has to skip
	// past them.
	nonEmpty := make([][]byte, 0, len(bufs))
	for _, b := range bufs {
		if len(b) > 0 {
			nonEmpty = append(nonEmpty, b)
		}
	}
	return &CatSource{bufs: nonEmpty, tail: tail}
}

func (c *CatSource) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if len(c.bufs) > 0 {
		cur := c.bufs[0]
		n := copy(p, cur[c.bufOff:])
		c.bufOff += n
		if c.bufOff >= len(cur) {
			c.bufs = c.bufs[1:]
			c.bufOff = 0
		}
		c.offset += int64(n)
		return n, nil
	}
	n, err := c.tail.Read(p)
	c.offset += int64(n)
	return n, err
}

func (c *CatSource) Tell() int64 { return c.offset }

// Seekable reports false: CatSource's own forward-seek-by-discard loop
// handles movement regardless of what the tail supports, but true random
// access would require buffering the tail, which CatSource never does.
func (c *CatSource) Seekable() bool { return false }

func (c *CatSource) Seek(offset int64, whence int) (int64, error) {
	return seekByDiscard(c, c.offset, offset, whence)
}

func (c *CatSource) TotalSize() (int64, bool) { return 0, false }
