// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package protostream reads and writes streams of length-delimited protobuf
// messages.
//
// Each message is preceded by its size, encoded as a varint.
package protostream

import (
	"encoding/binary"
	"io"

	"github.com/danjacques/godemocut/support/dataio"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

// DefaultMaxSize is the default largest message a Decoder will accept.
const DefaultMaxSize = 16 * 1024 * 1024

// Encoder encodes a protobuf message stream to an io.Writer.
type Encoder struct {
	w   io.Writer
	buf []byte

	// Count is the number of bytes written.
	Count int64
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder { return &Encoder{w: w} }

// Write writes a single message.
func (e *Encoder) Write(pb proto.Message) error {
	opts := proto.MarshalOptions{Deterministic: true}

	e.buf = protowire.AppendVarint(e.buf[:0], uint64(opts.Size(pb)))
	var err error
	if e.buf, err = opts.MarshalAppend(e.buf, pb); err != nil {
		return errors.Wrap(err, "marshalling message")
	}

	amt, err := e.w.Write(e.buf)
	e.Count += int64(amt)
	return err
}

// Decoder decodes a series of messages from a protobuf message stream.
type Decoder struct {
	r   dataio.Reader
	buf []byte

	// MaxSize is the largest message the Decoder will accept. If zero,
	// DefaultMaxSize is used.
	MaxSize int
}

// NewDecoder returns a Decoder that reads from r. r should be buffered.
func NewDecoder(r io.Reader) *Decoder { return &Decoder{r: dataio.MakeReader(r)} }

// Read reads the next message into pb. At the end of the stream, Read returns
// io.EOF.
func (d *Decoder) Read(pb proto.Message) error {
	size, err := binary.ReadUvarint(d.r)
	switch {
	case err == io.EOF:
		return io.EOF
	case err != nil:
		return errors.Wrap(err, "reading size prefix")
	}

	maxSize := d.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if size > uint64(maxSize) {
		return errors.Errorf("message size %d exceeds maximum (%d)", size, maxSize)
	}

	if uint64(cap(d.buf)) < size {
		d.buf = make([]byte, size)
	}
	d.buf = d.buf[:size]
	if err := dataio.ReadFull(d.r, d.buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return errors.Wrap(err, "reading message")
	}
	return proto.Unmarshal(d.buf, pb)
}
