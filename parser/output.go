// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package parser

import (
	"io"

	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/protocol"
	"github.com/danjacques/godemocut/protocol/msg"

	"github.com/pkg/errors"
)

// OutputStream encodes GameStates, commands and snapshots into a new capture.
//
// Snapshots are delta-encoded against the last snapshot written to this
// stream, independent of how they were encoded in any source capture. A
// GameState resets the reference, so the stream stays decodable from any
// GameState it contains.
type OutputStream struct {
	proto *protocol.Protocol
	cw    *capture.Writer
	w     msg.Writer

	seq    int32
	cmdSeq int32
	// started is true once a GameState has been written.
	started bool

	baselines []protocol.EntityState

	last      Snapshot
	lastSeq   int32
	haveLast  bool
	snapshots int
}

// NewOutputStream returns an OutputStream that writes a capture of the
// specified protocol to w.
func NewOutputStream(w io.Writer, proto *protocol.Protocol) *OutputStream {
	return &OutputStream{
		proto: proto,
		cw:    capture.NewWriter(w),
	}
}

// BytesWritten returns the number of capture bytes written so far.
func (o *OutputStream) BytesWritten() int64 { return o.cw.Count }

// SnapshotsWritten returns the number of snapshots written so far.
func (o *OutputStream) SnapshotsWritten() int { return o.snapshots }

// WriteGameState writes a GameState message.
//
// The first GameState's command sequence seeds the stream's own reliable
// sequence; later GameStates continue it.
func (o *OutputStream) WriteGameState(gs *GameStateRecord) error {
	if !o.started {
		o.cmdSeq = gs.ServerCommandSequence
		o.started = true
	}

	if o.baselines == nil {
		o.baselines = make([]protocol.EntityState, protocol.MaxGEntities)
	} else {
		for i := range o.baselines {
			o.baselines[i] = protocol.EntityState{}
		}
	}

	w := o.beginMessage()
	w.WriteUint8(int32(protocol.OpGameState))
	w.WriteInt32(o.cmdSeq)
	for _, cs := range gs.ConfigStrings {
		w.WriteUint8(int32(protocol.OpConfigString))
		w.WriteInt16(int32(cs.Index))
		w.WriteBigString(cs.Value)
	}

	var null protocol.EntityState
	for i := range gs.Baselines {
		b := &gs.Baselines[i]
		if b.Number < 0 || b.Number >= protocol.EntityNumNone {
			return errors.Wrapf(protocol.ErrIndexRange, "baseline entity %d", b.Number)
		}
		o.baselines[b.Number] = *b

		w.WriteUint8(int32(protocol.OpBaseline))
		w.WriteDeltaEntity(o.proto.EntityFields, &null, b, true)
	}
	w.WriteUint8(int32(protocol.OpEOF))
	w.WriteInt32(gs.ClientNum)
	w.WriteInt32(gs.ChecksumFeed)

	o.haveLast = false
	return o.endMessage()
}

// WriteMessage writes a message carrying commands, followed by snap if it is
// not nil.
func (o *OutputStream) WriteMessage(commands []string, snap *Snapshot) error {
	if !o.started {
		return errors.New("message written before a GameState")
	}

	w := o.beginMessage()
	for _, cmd := range commands {
		o.cmdSeq++
		w.WriteUint8(int32(protocol.OpServerCommand))
		w.WriteInt32(o.cmdSeq)
		w.WriteString(cmd)
	}

	if snap != nil {
		o.writeSnapshot(snap)
	}
	return o.endMessage()
}

func (o *OutputStream) writeSnapshot(snap *Snapshot) {
	w := &o.w

	var (
		deltaNum int32
		fromPS   *protocol.PlayerState
		fromEnts []protocol.EntityState
	)
	if o.haveLast && o.seq-o.lastSeq < protocol.PacketBackup {
		deltaNum = o.seq - o.lastSeq
		fromPS = &o.last.PlayerState
		fromEnts = o.last.Entities
	}

	w.WriteUint8(int32(protocol.OpSnapshot))
	w.WriteInt32(snap.ServerTimeMs)
	w.WriteUint8(deltaNum)
	w.WriteUint8(snap.SnapFlags)
	w.WriteUint8(int32(len(snap.AreaMask)))
	w.WriteData(snap.AreaMask)
	w.WriteDeltaPlayerState(o.proto.PlayerFields, fromPS, &snap.PlayerState)
	w.WritePacketEntities(o.proto.EntityFields, o.baselines, fromEnts, snap.Entities)

	o.last.CopyFrom(snap)
	o.lastSeq = o.seq
	o.haveLast = true
	o.snapshots++
}

func (o *OutputStream) beginMessage() *msg.Writer {
	o.seq++
	o.w.Reset()
	o.w.WriteInt32(0) // Reliable acknowledge.
	return &o.w
}

func (o *OutputStream) endMessage() error {
	o.w.WriteUint8(int32(protocol.OpEOF))
	if err := o.w.Err(); err != nil {
		return errors.Wrapf(err, "encoding message %d", o.seq)
	}
	return o.cw.WriteMessage(o.seq, o.w.Bytes())
}

// WriteEnd writes the end-of-capture marker.
func (o *OutputStream) WriteEnd() error { return o.cw.WriteEnd() }
