// Package boxerr defines the error sentinels shared across the box
// engine. Every package that can fail wraps one of these with
// fmt.Errorf("...: %w", ...) so callers can use errors.Is against a
// single small vocabulary instead of each package inventing its own.
package boxerr

import "errors"

var (
	// ErrInvalidBmff marks a malformed header, truncated box, non-ASCII
	// type, or a declared length shorter than the header.
	ErrInvalidBmff = errors.New("boxcutter: invalid bmff structure")

	// ErrRawJxl is raised when the input looks like a raw JPEG XL
	// codestream (FF 0A magic) rather than a box container.
	ErrRawJxl = errors.New("boxcutter: input is a raw jxl codestream, not a container")

	// ErrInvalidJxlContainer marks a violation of the jxlc/jxlp
	// sequencing rules.
	ErrInvalidJxlContainer = errors.New("boxcutter: invalid jxl container structure")

	// ErrInvalidBoxSpec marks an unparseable box selector expression.
	ErrInvalidBoxSpec = errors.New("boxcutter: invalid box selector")

	// ErrUnseekableOutput marks an operation that needed to seek back
	// on the output stream but the stream does not support it.
	ErrUnseekableOutput = errors.New("boxcutter: output stream is not seekable")

	// ErrUnseekableInput marks a backward seek request on a stream that
	// does not support seeking.
	ErrUnseekableInput = errors.New("boxcutter: input stream is not seekable")

	// ErrTooMuchData marks a decompression whose output exceeded the
	// configured cap.
	ErrTooMuchData = errors.New("boxcutter: decompressed size exceeds limit")

	// ErrSizeNotSupported marks a box whose final size exceeds 2^32-1
	// bytes where the format or stream state does not allow encoding
	// that size (non-final box, no extended form chosen, etc).
	ErrSizeNotSupported = errors.New("boxcutter: box size not supported")
)

// UsageError reports API misuse: reading both "full" and "payload" mode
// for the same box, or calling FinalBoxSize on a box with an explicit
// length. Calling NextBox again after the end of the stream is not
// misuse; it keeps reporting end of stream. It is a programming bug, not a data error,
// so callers are expected to fix the call site rather than handle it.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string { return "boxcutter: usage error: " + e.Msg }

// Usage panics with a UsageError. Call sites that hit it have a bug.
func Usage(msg string) {
	panic(&UsageError{Msg: msg})
}
