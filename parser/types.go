// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package parser

import (
	"sort"

	"github.com/danjacques/godemocut/protocol"
)

// Snapshot is one reconstructed server frame.
type Snapshot struct {
	// Valid is true if the snapshot was fully resolved. Snapshots that delta
	// from an unavailable frame are never valid.
	Valid bool
	// MessageNum is the sequence number of the message carrying the snapshot.
	MessageNum int32
	// GameStateIndex is the GameState the snapshot belongs to.
	GameStateIndex int

	ServerTimeMs int32
	SnapFlags    int32
	AreaMask     []byte

	PlayerState protocol.PlayerState
	// Entities is the set of active entities, sorted by entity number.
	Entities []protocol.EntityState
}

// CopyFrom makes snap a deep copy of src, reusing snap's storage.
func (snap *Snapshot) CopyFrom(src *Snapshot) {
	areaMask, entities := snap.AreaMask, snap.Entities
	*snap = *src
	snap.AreaMask = append(areaMask[:0], src.AreaMask...)
	snap.Entities = append(entities[:0], src.Entities...)
}

// Entity returns the active entity with the specified number, or nil if it is
// not active in this snapshot.
func (snap *Snapshot) Entity(num int32) *protocol.EntityState {
	i := sort.Search(len(snap.Entities), func(i int) bool { return snap.Entities[i].Number >= num })
	if i < len(snap.Entities) && snap.Entities[i].Number == num {
		return &snap.Entities[i]
	}
	return nil
}

// ServerCommand is an accepted reliable server command.
type ServerCommand struct {
	Sequence int32
	Text     string
}

// GameStateInfo summarizes a GameState of the capture.
type GameStateInfo struct {
	Index      int
	FileOffset uint32
	ClientNum  int32

	// FirstSnapshotTimeMs and LastSnapshotTimeMs bound the server times of the
	// GameState's valid snapshots. They are only meaningful if SnapshotCount is
	// non-zero.
	FirstSnapshotTimeMs int32
	LastSnapshotTimeMs  int32
	SnapshotCount       int
}

// ConfigString is a single config string table entry.
type ConfigString struct {
	Index int
	Value string
}

// GameStateRecord is the content of a GameState message.
type GameStateRecord struct {
	ServerCommandSequence int32
	// ConfigStrings holds every non-empty config string, by ascending index.
	ConfigStrings []ConfigString
	// Baselines holds every baseline entity, by ascending entity number.
	Baselines    []protocol.EntityState
	ClientNum    int32
	ChecksumFeed int32
}
