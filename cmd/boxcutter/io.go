package main

import (
	"fmt"
	"io"
	"os"

	"github.com/boxcutter-go/boxcutter/internal/source"
	"github.com/boxcutter-go/boxcutter/internal/writer"
)

// openInput opens name as a ByteSource; "-" (or "") means stdin, which is
// never closed by the caller.
func openInput(name string) (source.ByteSource, io.Closer, error) {
	if name == "-" || name == "" {
		return source.NewStream(os.Stdin), nil, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", name, err)
	}
	return source.NewFile(f), f, nil
}

// openOutput opens name as a Sink; "-" (or "") means stdout.
func openOutput(name string) (writer.Sink, io.Closer, error) {
	if name == "-" || name == "" {
		return writer.NewStreamSink(os.Stdout), nil, nil
	}
	f, err := os.Create(name)
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return writer.NewFileSink(f), f, nil
}

// ioArgs resolves a command's trailing [IN] [OUT] positional pair: both
// omitted defaults to stdin/stdout (the original CLI's convention), and
// any other count is a usage mistake.
func ioArgs(args []string) (in, out string, err error) {
	switch len(args) {
	case 0:
		return "-", "-", nil
	case 2:
		return args[0], args[1], nil
	default:
		return "", "", fmt.Errorf("expected zero or two positional arguments (IN OUT), got %d", len(args))
	}
}
