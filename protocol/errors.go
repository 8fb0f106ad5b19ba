// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"github.com/pkg/errors"
)

var (
	// ErrUnsupported is returned when a capture uses an unknown protocol
	// revision.
	ErrUnsupported = errors.New("unsupported protocol revision")

	// ErrMalformed is returned when a message cannot be decoded.
	ErrMalformed = errors.New("malformed message")

	// ErrSequence is returned when a message sequence number regresses or is
	// repeated.
	ErrSequence = errors.New("message sequence violation")

	// ErrIndexRange is returned when an entity or config string index is out of
	// range.
	ErrIndexRange = errors.New("index out of range")
)
