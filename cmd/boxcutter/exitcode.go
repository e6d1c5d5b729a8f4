package main

import (
	"errors"

	"github.com/boxcutter-go/boxcutter/internal/boxerr"
)

// exitCode categorizes a command's terminal outcome, per spec.md Section
// 6's "0 success, 1 semantic failure, 2 usage/decompress-limit" policy.
type exitCode int

const (
	exitSuccess  exitCode = 0
	exitSemantic exitCode = 1
	exitUsage    exitCode = 2
)

// cmdError pairs an error with the exit code it must produce, so classify
// never has to re-derive intent from error text.
type cmdError struct {
	code exitCode
	err  error
}

func (e *cmdError) Error() string { return e.err.Error() }
func (e *cmdError) Unwrap() error { return e.err }

// semanticErr marks err as a semantic failure (no match, a file failed to
// parse): exit code 1.
func semanticErr(err error) error { return &cmdError{code: exitSemantic, err: err} }

// usageErr marks err as a usage mistake (bad flag, unparseable selector,
// an operation the chosen output stream cannot support): exit code 2.
func usageErr(err error) error { return &cmdError{code: exitUsage, err: err} }

// classify assigns the exit code main reports for err. Errors already
// wrapped by semanticErr/usageErr keep their assigned code; errors
// surfacing straight from the internal packages are mapped by sentinel.
func classify(err error) exitCode {
	if err == nil {
		return exitSuccess
	}
	var ce *cmdError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch {
	case errors.Is(err, boxerr.ErrInvalidBoxSpec),
		errors.Is(err, boxerr.ErrTooMuchData),
		errors.Is(err, boxerr.ErrUnseekableOutput),
		errors.Is(err, boxerr.ErrUnseekableInput):
		return exitUsage
	default:
		return exitSemantic
	}
}
