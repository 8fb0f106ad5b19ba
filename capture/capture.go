// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package capture reads and writes capture files.
//
// A capture is a sequence of records, each consisting of a little-endian
// message sequence number, a little-endian payload length, and the payload.
// The stream ends at EOF or at a record whose length is -1.
package capture

import (
	"io"

	"github.com/danjacques/godemocut/protocol"
	"github.com/danjacques/godemocut/support/dataio"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// ErrTruncated is returned when a capture ends in the middle of a record.
var ErrTruncated = errors.New("truncated capture record")

// endOfCapture is the length value marking the end of a capture.
const endOfCapture = -1

type recordHeader struct {
	Sequence int32 `struc:"int32,little"`
	Length   int32 `struc:"int32,little"`
}

// recordHeaderSize is the packed size of a recordHeader.
const recordHeaderSize = 8

// Message is a single capture record.
type Message struct {
	// Sequence is the message's sequence number.
	Sequence int32
	// Offset is the file offset of the start of the record.
	Offset uint32
	// Data is the message payload.
	Data []byte
}

// Reader reads Messages from a capture stream.
type Reader struct {
	cr dataio.CountingReader
}

// NewReader returns a Reader that reads from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		cr: dataio.CountingReader{Reader: dataio.MakeReader(r)},
	}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 { return r.cr.Count }

// Next reads the next Message, storing its payload in buf. buf must be at least
// MaxMessageLength bytes.
//
// At the end of the capture, Next returns io.EOF.
func (r *Reader) Next(buf []byte) (Message, error) {
	msg := Message{Offset: uint32(r.cr.Count)}

	var hdr recordHeader
	switch err := struc.Unpack(&r.cr, &hdr); err {
	case nil:
	case io.EOF:
		// A header field may end cleanly after an earlier one was read.
		if r.cr.Count == int64(msg.Offset) {
			return msg, io.EOF
		}
		return msg, errors.Wrapf(ErrTruncated, "record header at offset %d", msg.Offset)
	case io.ErrUnexpectedEOF:
		return msg, errors.Wrapf(ErrTruncated, "record header at offset %d", msg.Offset)
	default:
		return msg, errors.Wrapf(err, "reading record header at offset %d", msg.Offset)
	}

	if hdr.Length == endOfCapture {
		return msg, io.EOF
	}
	if hdr.Length < 0 || hdr.Length > protocol.MaxMessageLength {
		return msg, errors.Wrapf(protocol.ErrMalformed, "record at offset %d has length %d", msg.Offset, hdr.Length)
	}
	if int(hdr.Length) > len(buf) {
		return msg, errors.Errorf("buffer of %d bytes cannot hold %d-byte record", len(buf), hdr.Length)
	}

	msg.Sequence = hdr.Sequence
	msg.Data = buf[:hdr.Length]
	if err := dataio.ReadFull(&r.cr, msg.Data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return msg, errors.Wrapf(ErrTruncated, "record payload at offset %d", msg.Offset)
		}
		return msg, errors.Wrapf(err, "reading record payload at offset %d", msg.Offset)
	}
	return msg, nil
}

// Writer writes Messages to a capture stream.
type Writer struct {
	w io.Writer

	// Count is the number of bytes written.
	Count int64
}

// NewWriter returns a Writer that writes to w.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

// WriteMessage writes a single record.
func (w *Writer) WriteMessage(seq int32, data []byte) error {
	if len(data) > protocol.MaxMessageLength {
		return errors.Errorf("message of %d bytes exceeds maximum (%d)", len(data), protocol.MaxMessageLength)
	}

	hdr := recordHeader{Sequence: seq, Length: int32(len(data))}
	if err := struc.Pack(w.w, &hdr); err != nil {
		return errors.Wrap(err, "writing record header")
	}
	if _, err := w.w.Write(data); err != nil {
		return errors.Wrap(err, "writing record payload")
	}
	w.Count += int64(recordHeaderSize + len(data))
	return nil
}

// WriteEnd writes the end-of-capture marker.
func (w *Writer) WriteEnd() error {
	hdr := recordHeader{Sequence: endOfCapture, Length: endOfCapture}
	if err := struc.Pack(w.w, &hdr); err != nil {
		return errors.Wrap(err, "writing end marker")
	}
	w.Count += recordHeaderSize
	return nil
}
