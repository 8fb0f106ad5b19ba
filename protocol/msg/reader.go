// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package msg

import (
	"math"

	"github.com/danjacques/godemocut/protocol"

	"github.com/pkg/errors"
)

// Reader reads bit-packed values from a message payload.
//
// Reader errors are sticky: once a read fails, every subsequent read returns
// zero and Err returns the first failure.
type Reader struct {
	data []byte
	bit  int
	err  error
}

// Reset resets the Reader to read from the start of data.
func (r *Reader) Reset(data []byte) {
	r.data = data
	r.bit = 0
	r.err = nil
}

// Err returns the first error encountered while reading, if any.
func (r *Reader) Err() error { return r.err }

// BitsRead returns the number of bits consumed so far.
func (r *Reader) BitsRead() int { return r.bit }

// Remaining returns the number of unread bits.
func (r *Reader) Remaining() int { return len(r.data)*8 - r.bit }

func (r *Reader) fail(format string, args ...interface{}) {
	if r.err == nil {
		r.err = errors.Wrapf(protocol.ErrMalformed, format, args...)
	}
}

// ReadBits reads an integer of the specified width. A negative width reads a
// sign-extended value.
func (r *Reader) ReadBits(bits int) int32 {
	signed := bits < 0
	if signed {
		bits = -bits
	}
	if bits <= 0 || bits > 32 {
		r.fail("invalid bit count %d", bits)
		return 0
	}
	if r.err != nil {
		return 0
	}
	if r.bit+bits > len(r.data)*8 {
		r.fail("read of %d bits at bit %d overruns %d-byte payload", bits, r.bit, len(r.data))
		return 0
	}

	var v uint32
	for i := 0; i < bits; i++ {
		b := (r.data[r.bit>>3] >> uint(r.bit&7)) & 1
		v |= uint32(b) << uint(i)
		r.bit++
	}
	if signed && bits < 32 && v&(1<<uint(bits-1)) != 0 {
		v |= ^uint32(0) << uint(bits)
	}
	return int32(v)
}

// ReadUint8 reads an unsigned byte.
func (r *Reader) ReadUint8() int32 { return r.ReadBits(8) }

// ReadInt16 reads a signed 16-bit value.
func (r *Reader) ReadInt16() int32 { return r.ReadBits(-16) }

// ReadInt32 reads a 32-bit value.
func (r *Reader) ReadInt32() int32 { return r.ReadBits(32) }

// ReadData reads len(buf) bytes into buf.
func (r *Reader) ReadData(buf []byte) {
	for i := range buf {
		buf[i] = byte(r.ReadUint8())
	}
}

// ReadString reads a zero-terminated string of at most MaxStringChars.
func (r *Reader) ReadString() string { return r.readString(protocol.MaxStringChars) }

// ReadBigString reads a zero-terminated string of at most MaxBigStringChars.
func (r *Reader) ReadBigString() string { return r.readString(protocol.MaxBigStringChars) }

func (r *Reader) readString(limit int) string {
	var buf []byte
	for {
		c := r.ReadUint8()
		if c == 0 || r.err != nil {
			break
		}
		if len(buf) < limit-1 {
			buf = append(buf, byte(c))
		}
	}
	return string(buf)
}

// readDeltaFloat reads an entity float: a zero flag, then either a biased
// integer or full IEEE-754 bits.
func (r *Reader) readDeltaFloat() uint32 {
	if r.ReadBits(1) == 0 {
		return 0
	}
	return r.readPlayerFloat()
}

// readPlayerFloat reads a player state float, which carries no zero flag.
func (r *Reader) readPlayerFloat() uint32 {
	if r.ReadBits(1) == 0 {
		trunc := r.ReadBits(floatIntBits) - floatIntBias
		return math.Float32bits(float32(trunc))
	}
	return uint32(r.ReadBits(32))
}
