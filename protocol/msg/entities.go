// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package msg

import (
	"github.com/danjacques/godemocut/protocol"
)

// noEntity sorts after every valid entity number.
const noEntity = int32(1 << 20)

func entityNumAt(list []protocol.EntityState, i int) int32 {
	if i >= len(list) {
		return noEntity
	}
	return list[i].Number
}

// WritePacketEntities writes the entity list of a snapshot as a delta against
// the reference list from. Both lists must be sorted by entity number.
// Entities new to the reference are written against their baseline.
func (w *Writer) WritePacketEntities(fields []protocol.Field, baselines, from, to []protocol.EntityState) {
	if len(baselines) < protocol.MaxGEntities {
		w.fail("baseline table holds %d entities", len(baselines))
		return
	}

	oldIndex, newIndex := 0, 0
	for newIndex < len(to) || oldIndex < len(from) {
		newNum, oldNum := entityNumAt(to, newIndex), entityNumAt(from, oldIndex)

		switch {
		case newNum == oldNum:
			w.WriteDeltaEntity(fields, &from[oldIndex], &to[newIndex], false)
			oldIndex++
			newIndex++

		case newNum < oldNum:
			w.WriteDeltaEntity(fields, &baselines[newNum], &to[newIndex], true)
			newIndex++

		default:
			w.WriteDeltaEntity(fields, &from[oldIndex], nil, true)
			oldIndex++
		}
	}
	w.WriteBits(protocol.EntityNumNone, protocol.GEntityNumBits)
}

// ReadPacketEntities reads a snapshot entity list written by
// WritePacketEntities, appending the resolved entities to to in ascending
// order. Reference entities not mentioned in the message carry over
// unchanged.
//
// to must not share storage with from.
func (r *Reader) ReadPacketEntities(fields []protocol.Field, baselines, from, to []protocol.EntityState) []protocol.EntityState {
	if len(baselines) < protocol.MaxGEntities {
		r.fail("baseline table holds %d entities", len(baselines))
		return to
	}

	oldIndex := 0
	last := int32(-1)
	for {
		newNum := r.ReadBits(protocol.GEntityNumBits)
		if r.err != nil {
			return to
		}
		if newNum == protocol.EntityNumNone {
			break
		}
		if newNum <= last {
			r.fail("entity %d listed after entity %d", newNum, last)
			return to
		}
		last = newNum

		for entityNumAt(from, oldIndex) < newNum {
			to = append(to, from[oldIndex])
			oldIndex++
		}

		ref := &baselines[newNum]
		if entityNumAt(from, oldIndex) == newNum {
			ref = &from[oldIndex]
			oldIndex++
		}

		to = append(to, protocol.EntityState{})
		if r.ReadDeltaEntity(fields, ref, &to[len(to)-1], newNum) {
			to = to[:len(to)-1]
		}
		if r.err != nil {
			return to
		}
	}

	if oldIndex < len(from) {
		to = append(to, from[oldIndex:]...)
	}
	return to
}
