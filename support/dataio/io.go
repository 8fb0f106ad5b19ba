// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package dataio holds small io helpers shared by the capture readers and
// writers.
package dataio

import (
	"bufio"
	"io"
)

// Reader reads both byte slices and single bytes. Varint decoding needs the
// latter.
type Reader interface {
	io.Reader
	io.ByteReader
}

// MakeReader returns r as a Reader. If r cannot read single bytes, it is
// wrapped in a small bufio.Reader; reads through the result may then consume
// more of r than they return.
func MakeReader(r io.Reader) Reader {
	if br, ok := r.(Reader); ok {
		return br
	}
	return bufio.NewReaderSize(r, 512)
}

// ReadFull reads from r until buf is full, or until an error is encountered.
//
// A short read that ends in io.EOF is reported as io.ErrUnexpectedEOF, so
// callers can tell a clean end of stream (nothing read) from truncation.
func ReadFull(r io.Reader, buf []byte) error {
	read := 0
	for read < len(buf) {
		amt, err := r.Read(buf[read:])
		read += amt
		if err != nil {
			switch {
			case read == len(buf):
				return nil
			case err == io.EOF && read > 0:
				return io.ErrUnexpectedEOF
			default:
				return err
			}
		}
	}
	return nil
}

// CountingReader is a Reader that tracks the number of bytes read through it.
type CountingReader struct {
	Reader Reader

	// Count is the number of bytes read so far.
	Count int64
}

var _ Reader = (*CountingReader)(nil)

func (cr *CountingReader) Read(buf []byte) (int, error) {
	amt, err := cr.Reader.Read(buf)
	cr.Count += int64(amt)
	return amt, err
}

// ReadByte implements io.ByteReader.
func (cr *CountingReader) ReadByte() (byte, error) {
	b, err := cr.Reader.ReadByte()
	if err == nil {
		cr.Count++
	}
	return b, err
}

// CountingWriter is a Writer that tracks the number of bytes written through
// it.
type CountingWriter struct {
	Writer io.Writer

	// Count is the number of bytes written so far.
	Count int64
}

func (cw *CountingWriter) Write(buf []byte) (int, error) {
	amt, err := cw.Writer.Write(buf)
	cw.Count += int64(amt)
	return amt, err
}
