// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"math"
)

// EntityState is the resolved state of a single entity.
//
// Field values are stored as their raw 32-bit encoding; float fields hold
// IEEE-754 bits. Fields that a revision does not transmit stay zero.
type EntityState struct {
	Number int32
	Fields [NumEntityFields]uint32
}

// Int returns an integer field.
func (es *EntityState) Int(f EntityField) int32 { return int32(es.Fields[f]) }

// Float returns a float field.
func (es *EntityState) Float(f EntityField) float32 { return math.Float32frombits(es.Fields[f]) }

// SetInt sets an integer field.
func (es *EntityState) SetInt(f EntityField, v int32) { es.Fields[f] = uint32(v) }

// SetFloat sets a float field.
func (es *EntityState) SetFloat(f EntityField, v float32) { es.Fields[f] = math.Float32bits(v) }

// PlayerState is the state of the player a capture is recorded from.
type PlayerState struct {
	Fields [NumPlayerFields]uint32

	Stats      [MaxStats]int32
	Persistant [MaxStats]int32
	Ammo       [MaxStats]int32
	Powerups   [MaxStats]int32
}

// Int returns an integer field.
func (ps *PlayerState) Int(f PlayerField) int32 { return int32(ps.Fields[f]) }

// Float returns a float field.
func (ps *PlayerState) Float(f PlayerField) float32 { return math.Float32frombits(ps.Fields[f]) }

// SetInt sets an integer field.
func (ps *PlayerState) SetInt(f PlayerField, v int32) { ps.Fields[f] = uint32(v) }

// SetFloat sets a float field.
func (ps *PlayerState) SetFloat(f PlayerField, v float32) { ps.Fields[f] = math.Float32bits(v) }
