// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package msg

import (
	"math"

	"github.com/danjacques/godemocut/protocol"

	"github.com/pkg/errors"
)

const (
	floatIntBits = 13
	floatIntBias = 1 << (floatIntBits - 1)
)

// Writer writes bit-packed values into a message payload.
//
// Like Reader, Writer errors are sticky. A Writer refuses to grow beyond
// MaxMessageLength bytes.
type Writer struct {
	buf []byte
	bit int
	err error
}

// Reset clears the Writer, retaining its buffer.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.bit = 0
	w.err = nil
}

// Err returns the first error encountered while writing, if any.
func (w *Writer) Err() error { return w.err }

// Bytes returns the written payload. It is valid until the next write or
// Reset.
func (w *Writer) Bytes() []byte { return w.buf }

// WriteBits writes the low bits of v. A negative width writes a signed value
// of the same width.
func (w *Writer) WriteBits(v int32, bits int) {
	if bits < 0 {
		bits = -bits
	}
	if bits <= 0 || bits > 32 {
		w.fail("invalid bit count %d", bits)
		return
	}
	if w.err != nil {
		return
	}
	if w.bit+bits > protocol.MaxMessageLength*8 {
		w.fail("message exceeds %d bytes", protocol.MaxMessageLength)
		return
	}

	u := uint32(v)
	for i := 0; i < bits; i++ {
		if w.bit&7 == 0 {
			w.buf = append(w.buf, 0)
		}
		w.buf[w.bit>>3] |= byte((u>>uint(i))&1) << uint(w.bit&7)
		w.bit++
	}
}

func (w *Writer) fail(format string, args ...interface{}) {
	if w.err == nil {
		w.err = errors.Errorf(format, args...)
	}
}

// WriteUint8 writes an unsigned byte.
func (w *Writer) WriteUint8(v int32) { w.WriteBits(v, 8) }

// WriteInt16 writes a 16-bit value.
func (w *Writer) WriteInt16(v int32) { w.WriteBits(v, 16) }

// WriteInt32 writes a 32-bit value.
func (w *Writer) WriteInt32(v int32) { w.WriteBits(v, 32) }

// WriteData writes raw bytes.
func (w *Writer) WriteData(data []byte) {
	for _, b := range data {
		w.WriteUint8(int32(b))
	}
}

// WriteString writes a zero-terminated string.
func (w *Writer) WriteString(s string) { w.writeString(s, protocol.MaxStringChars) }

// WriteBigString writes a zero-terminated string with the larger limit.
func (w *Writer) WriteBigString(s string) { w.writeString(s, protocol.MaxBigStringChars) }

func (w *Writer) writeString(s string, limit int) {
	if len(s) >= limit {
		w.fail("string of %d bytes exceeds limit %d", len(s), limit)
		return
	}
	for i := 0; i < len(s); i++ {
		w.WriteUint8(int32(s[i]))
	}
	w.WriteUint8(0)
}

func (w *Writer) writeDeltaFloat(v uint32) {
	if v == 0 {
		w.WriteBits(0, 1)
		return
	}
	w.WriteBits(1, 1)
	w.writePlayerFloat(v)
}

func (w *Writer) writePlayerFloat(v uint32) {
	if trunc, ok := truncatedFloat(v); ok {
		w.WriteBits(0, 1)
		w.WriteBits(trunc+floatIntBias, floatIntBits)
		return
	}
	w.WriteBits(1, 1)
	w.WriteBits(int32(v), 32)
}

// truncatedFloat returns the integer value of the float bits v if it survives
// the biased integer encoding unchanged.
func truncatedFloat(v uint32) (int32, bool) {
	f := math.Float32frombits(v)
	if !(f >= -floatIntBias && f < floatIntBias) {
		return 0, false
	}
	trunc := int32(f)
	if math.Float32bits(float32(trunc)) != v {
		return 0, false
	}
	return trunc, true
}
