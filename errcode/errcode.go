// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package errcode defines the outcome codes reported for each processed file.
package errcode

import (
	"context"
	"fmt"
	"os"

	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/protocol"

	"github.com/pkg/errors"
)

// Code is the outcome of processing one file.
type Code int

// Outcome codes.
const (
	// None means the file was processed successfully.
	None Code = iota
	// Cancelled means processing was cancelled before the file completed.
	Cancelled
	// Skipped means the file was not processed because the run was cancelled
	// before it started.
	Skipped

	// UnsupportedProtocol means the file's revision is not supported.
	UnsupportedProtocol
	// MalformedMessage means a message could not be decoded.
	MalformedMessage
	// SequenceError means message sequence numbers did not increase.
	SequenceError
	// IndexOutOfRange means an entity or config string index was invalid.
	IndexOutOfRange
	// TruncatedCapture means the capture ended in the middle of a record.
	TruncatedCapture

	// OpenFailed means the input could not be opened or read.
	OpenFailed
	// WriteFailed means an output could not be created or written.
	WriteFailed
	// Crashed means processing the file panicked.
	Crashed
	// Unknown is any other failure.
	Unknown

	numCodes
)

var codeStrings = [numCodes]string{
	None:                "no error",
	Cancelled:           "operation cancelled",
	Skipped:             "skipped (operation cancelled)",
	UnsupportedProtocol: "unsupported protocol revision",
	MalformedMessage:    "malformed message",
	SequenceError:       "message sequence error",
	IndexOutOfRange:     "index out of range",
	TruncatedCapture:    "truncated capture",
	OpenFailed:          "failed to open or read the input file",
	WriteFailed:         "failed to write an output file",
	Crashed:             "processing crashed",
	Unknown:             "unknown error",
}

// String returns the human-readable description of the code.
func (c Code) String() string {
	if c >= 0 && c < numCodes {
		return codeStrings[c]
	}
	return fmt.Sprintf("invalid error code %d", int(c))
}

// Error wraps an error with its code. Wrap returns one.
type Error struct {
	Code Code
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }

// Cause returns the wrapped error, for errors.Cause.
func (e *Error) Cause() error { return e.Err }

// Wrap annotates err with an explicit code, overriding the code Of would infer
// from err. It returns nil if err is nil.
func Wrap(err error, c Code) error {
	if err == nil {
		return nil
	}
	return &Error{Code: c, Err: err}
}

// Of returns the code describing err.
func Of(err error) Code {
	if err == nil {
		return None
	}

	// Find an explicit code anywhere in the wrap chain.
	for e := err; e != nil; {
		if ce, ok := e.(*Error); ok {
			return ce.Code
		}
		c, ok := e.(interface{ Cause() error })
		if !ok {
			break
		}
		e = c.Cause()
	}

	switch cause := errors.Cause(err); cause {
	case context.Canceled, context.DeadlineExceeded:
		return Cancelled
	case protocol.ErrUnsupported:
		return UnsupportedProtocol
	case protocol.ErrMalformed:
		return MalformedMessage
	case protocol.ErrSequence:
		return SequenceError
	case protocol.ErrIndexRange:
		return IndexOutOfRange
	case capture.ErrTruncated:
		return TruncatedCapture
	default:
		if _, ok := cause.(*os.PathError); ok {
			return OpenFailed
		}
		return Unknown
	}
}
