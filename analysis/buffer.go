// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package analysis implements parser plug-ins that derive events from the
// decode stream: kills, chat lines, matches and multi-kill sequences.
package analysis

// Producer is the common view of an analyzer's results.
type Producer interface {
	// Len returns the number of results.
	Len() int
	// At returns the i'th result.
	At(i int) interface{}
}

// Buffer is a growable array of results.
//
// The zero value is an empty Buffer.
type Buffer[T any] struct {
	items []T
}

// Append adds v to the end of the buffer.
func (b *Buffer[T]) Append(v T) { b.items = append(b.items, v) }

// Len implements Producer.
func (b *Buffer[T]) Len() int { return len(b.items) }

// At implements Producer.
func (b *Buffer[T]) At(i int) interface{} { return b.items[i] }

// Items returns the buffered results. The slice is owned by the Buffer and is
// valid until the next Append or Reset.
func (b *Buffer[T]) Items() []T { return b.items }

// Reset empties the buffer, retaining its storage.
func (b *Buffer[T]) Reset() { b.items = b.items[:0] }
