// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package bufferpool offers reusable fixed-size byte buffers.
package bufferpool

import (
	"sync"
)

// Pool maintains a pool of buffers. It offers a new buffer when one is
// unavailable.
//
// Pool is safe for concurrent use. Workers processing files one after another
// share a Pool so that their large per-file buffers are recycled rather than
// reallocated.
type Pool struct {
	// Size is the size of the buffers in this pool.
	Size int

	base sync.Pool
}

// Get returns a zeroed buffer of at least Size bytes, allocating one if one is
// not available.
//
// The caller should return the buffer to the pool by calling its Release
// method when done with it.
func (bp *Pool) Get() *Buffer {
	b, ok := bp.base.Get().(*Buffer)
	if !ok || len(b.bytes) < bp.Size {
		b = &Buffer{
			bytes: make([]byte, bp.Size),
		}
	} else {
		for i := range b.bytes {
			b.bytes[i] = 0
		}
	}
	b.pool = bp
	return b
}

// Buffer is a byte buffer that can be released into a Pool for reuse.
type Buffer struct {
	bytes []byte
	pool  *Pool
}

// Bytes returns this buffer's byte slice.
func (b *Buffer) Bytes() []byte { return b.bytes }

// Release returns the buffer to its pool. A Buffer must only be released once,
// and must not be used afterwards.
func (b *Buffer) Release() {
	var pool *Pool
	pool, b.pool = b.pool, nil
	if pool == nil {
		panic("buffer released twice")
	}
	pool.base.Put(b)
}
