// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package msg

import (
	"github.com/danjacques/godemocut/protocol"
)

// WriteDeltaEntity writes the difference between from and to.
//
// If to is nil, a removal of from is written. If nothing changed, nothing is
// written unless force is true, in which case an explicit "no delta" record is
// emitted so the entity stays present.
func (w *Writer) WriteDeltaEntity(fields []protocol.Field, from, to *protocol.EntityState, force bool) {
	if to == nil {
		if from == nil {
			return
		}
		w.WriteBits(from.Number, protocol.GEntityNumBits)
		w.WriteBits(1, 1)
		return
	}

	if to.Number < 0 || to.Number >= protocol.EntityNumNone {
		w.fail("entity number %d out of range", to.Number)
		return
	}
	var zero protocol.EntityState
	if from == nil {
		from = &zero
	}

	lc := 0
	for i := range fields {
		idx := fields[i].Index
		if from.Fields[idx] != to.Fields[idx] {
			lc = i + 1
		}
	}

	if lc == 0 {
		if !force {
			return
		}
		w.WriteBits(to.Number, protocol.GEntityNumBits)
		w.WriteBits(0, 1)
		w.WriteBits(0, 1)
		return
	}

	w.WriteBits(to.Number, protocol.GEntityNumBits)
	w.WriteBits(0, 1)
	w.WriteBits(1, 1)
	w.WriteUint8(int32(lc))

	for i := 0; i < lc; i++ {
		f := &fields[i]
		v := to.Fields[f.Index]
		if from.Fields[f.Index] == v {
			w.WriteBits(0, 1)
			continue
		}
		w.WriteBits(1, 1)

		if f.IsFloat() {
			w.writeDeltaFloat(v)
			continue
		}
		if v == 0 {
			w.WriteBits(0, 1)
			continue
		}
		w.WriteBits(1, 1)
		w.WriteBits(int32(v), f.Bits)
	}
}

// ReadDeltaEntity reads the delta of entity number against from into to. It
// returns true if the entity was removed. The entity number has already been
// consumed by the caller.
func (r *Reader) ReadDeltaEntity(fields []protocol.Field, from, to *protocol.EntityState, number int32) bool {
	if number < 0 || number >= protocol.MaxGEntities {
		r.fail("entity number %d out of range", number)
		return false
	}
	var zero protocol.EntityState
	if from == nil {
		from = &zero
	}

	if r.ReadBits(1) == 1 {
		*to = protocol.EntityState{Number: protocol.EntityNumNone}
		return true
	}

	if r.ReadBits(1) == 0 {
		*to = *from
		to.Number = number
		return false
	}

	lc := int(r.ReadUint8())
	if lc > len(fields) {
		r.fail("entity %d changes %d fields, only %d exist", number, lc, len(fields))
		return false
	}

	if to != from {
		*to = *from
	}
	to.Number = number
	for i := 0; i < lc; i++ {
		f := &fields[i]
		if r.ReadBits(1) == 0 {
			continue
		}

		switch {
		case f.IsFloat():
			to.Fields[f.Index] = r.readDeltaFloat()
		case r.ReadBits(1) == 0:
			to.Fields[f.Index] = 0
		default:
			to.Fields[f.Index] = uint32(r.ReadBits(f.Bits))
		}
	}
	return false
}

// WriteDeltaPlayerState writes the difference between from and to. A nil from
// is treated as the zero state.
func (w *Writer) WriteDeltaPlayerState(fields []protocol.Field, from, to *protocol.PlayerState) {
	var zero protocol.PlayerState
	if from == nil {
		from = &zero
	}

	lc := 0
	for i := range fields {
		idx := fields[i].Index
		if from.Fields[idx] != to.Fields[idx] {
			lc = i + 1
		}
	}

	w.WriteUint8(int32(lc))
	for i := 0; i < lc; i++ {
		f := &fields[i]
		v := to.Fields[f.Index]
		if from.Fields[f.Index] == v {
			w.WriteBits(0, 1)
			continue
		}
		w.WriteBits(1, 1)

		if f.IsFloat() {
			w.writePlayerFloat(v)
		} else {
			w.WriteBits(int32(v), f.Bits)
		}
	}

	statsBits := changedMask(&from.Stats, &to.Stats)
	persBits := changedMask(&from.Persistant, &to.Persistant)
	ammoBits := changedMask(&from.Ammo, &to.Ammo)
	powerupBits := changedMask(&from.Powerups, &to.Powerups)
	if statsBits|persBits|ammoBits|powerupBits == 0 {
		w.WriteBits(0, 1)
		return
	}
	w.WriteBits(1, 1)

	w.writeArray(statsBits, &to.Stats, 16)
	w.writeArray(persBits, &to.Persistant, 16)
	w.writeArray(ammoBits, &to.Ammo, 16)
	w.writeArray(powerupBits, &to.Powerups, 32)
}

func changedMask(from, to *[protocol.MaxStats]int32) int32 {
	var mask int32
	for i := range to {
		if from[i] != to[i] {
			mask |= 1 << uint(i)
		}
	}
	return mask
}

func (w *Writer) writeArray(mask int32, values *[protocol.MaxStats]int32, bits int) {
	if mask == 0 {
		w.WriteBits(0, 1)
		return
	}
	w.WriteBits(1, 1)
	w.WriteBits(mask, protocol.MaxStats)
	for i := range values {
		if mask&(1<<uint(i)) != 0 {
			w.WriteBits(values[i], bits)
		}
	}
}

// ReadDeltaPlayerState reads a player state delta against from into to. A nil
// from is treated as the zero state.
func (r *Reader) ReadDeltaPlayerState(fields []protocol.Field, from, to *protocol.PlayerState) {
	var zero protocol.PlayerState
	if from == nil {
		from = &zero
	}
	if to != from {
		*to = *from
	}

	lc := int(r.ReadUint8())
	if lc > len(fields) {
		r.fail("player state changes %d fields, only %d exist", lc, len(fields))
		return
	}

	for i := 0; i < lc; i++ {
		f := &fields[i]
		if r.ReadBits(1) == 0 {
			continue
		}
		if f.IsFloat() {
			to.Fields[f.Index] = r.readPlayerFloat()
		} else {
			to.Fields[f.Index] = uint32(r.ReadBits(f.Bits))
		}
	}

	if r.ReadBits(1) == 0 {
		return
	}
	r.readArray(&to.Stats, -16)
	r.readArray(&to.Persistant, -16)
	r.readArray(&to.Ammo, -16)
	r.readArray(&to.Powerups, 32)
}

func (r *Reader) readArray(values *[protocol.MaxStats]int32, bits int) {
	if r.ReadBits(1) == 0 {
		return
	}
	mask := r.ReadBits(protocol.MaxStats)
	for i := range values {
		if mask&(1<<uint(i)) != 0 {
			values[i] = r.ReadBits(bits)
		}
	}
}
