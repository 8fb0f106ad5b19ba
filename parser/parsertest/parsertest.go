// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package parsertest builds synthetic captures and records what a Parser
// decodes from them.
package parsertest

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/protocol"
	"github.com/danjacques/godemocut/protocol/msg"
)

// Capture builds a capture in memory, one message at a time.
type Capture struct {
	Proto *protocol.Protocol

	buf bytes.Buffer
	cw  *capture.Writer
	w   msg.Writer

	// Baselines is the baseline table of the most recent GameState.
	Baselines []protocol.EntityState
}

// New returns an empty Capture for the specified revision. It panics if the
// revision is not supported.
func New(rev protocol.Revision) *Capture {
	proto, err := protocol.Lookup(rev)
	if err != nil {
		panic(err)
	}
	c := Capture{
		Proto:     proto,
		Baselines: make([]protocol.EntityState, protocol.MaxGEntities),
	}
	c.cw = capture.NewWriter(&c.buf)
	return &c
}

// Message appends a message with sequence seq. fn writes the message's
// operations; the reliable acknowledge and the terminating EOF are added
// automatically.
func (c *Capture) Message(seq int32, fn func(w *msg.Writer)) {
	c.w.Reset()
	c.w.WriteInt32(0)
	fn(&c.w)
	c.w.WriteUint8(int32(protocol.OpEOF))
	if err := c.w.Err(); err != nil {
		panic(err)
	}
	c.Raw(seq, c.w.Bytes())
}

// Raw appends a message with an arbitrary payload.
func (c *Capture) Raw(seq int32, payload []byte) {
	if err := c.cw.WriteMessage(seq, payload); err != nil {
		panic(err)
	}
}

// Bytes terminates the capture and returns its content.
func (c *Capture) Bytes() []byte {
	if err := c.cw.WriteEnd(); err != nil {
		panic(err)
	}
	return c.buf.Bytes()
}

// GameState writes a GameState operation.
func (c *Capture) GameState(w *msg.Writer, gs *parser.GameStateRecord) {
	for i := range c.Baselines {
		c.Baselines[i] = protocol.EntityState{}
	}

	w.WriteUint8(int32(protocol.OpGameState))
	w.WriteInt32(gs.ServerCommandSequence)
	for _, cs := range gs.ConfigStrings {
		w.WriteUint8(int32(protocol.OpConfigString))
		w.WriteInt16(int32(cs.Index))
		w.WriteBigString(cs.Value)
	}
	var null protocol.EntityState
	for i := range gs.Baselines {
		b := &gs.Baselines[i]
		c.Baselines[b.Number] = *b
		w.WriteUint8(int32(protocol.OpBaseline))
		w.WriteDeltaEntity(c.Proto.EntityFields, &null, b, true)
	}
	w.WriteUint8(int32(protocol.OpEOF))
	w.WriteInt32(gs.ClientNum)
	w.WriteInt32(gs.ChecksumFeed)
}

// Command writes a server command operation.
func Command(w *msg.Writer, seq int32, text string) {
	w.WriteUint8(int32(protocol.OpServerCommand))
	w.WriteInt32(seq)
	w.WriteString(text)
}

// Snapshot writes a snapshot operation. If from is nil the snapshot is written
// in full; otherwise it is a delta of deltaNum messages back against from.
func (c *Capture) Snapshot(w *msg.Writer, deltaNum int32, from, to *parser.Snapshot) {
	var (
		fromPS   *protocol.PlayerState
		fromEnts []protocol.EntityState
	)
	if from != nil {
		fromPS, fromEnts = &from.PlayerState, from.Entities
	}

	w.WriteUint8(int32(protocol.OpSnapshot))
	w.WriteInt32(to.ServerTimeMs)
	w.WriteUint8(deltaNum)
	w.WriteUint8(to.SnapFlags)
	w.WriteUint8(int32(len(to.AreaMask)))
	w.WriteData(to.AreaMask)
	w.WriteDeltaPlayerState(c.Proto.PlayerFields, fromPS, &to.PlayerState)
	w.WritePacketEntities(c.Proto.EntityFields, c.Baselines, fromEnts, to.Entities)
}

// Recorder is a parser plug-in that records everything it observes.
type Recorder struct {
	GameStates []parser.GameStateArg
	Commands   []string
	Snapshots  []parser.Snapshot
	Finished   bool
}

var _ interface {
	parser.GameStateProcessor
	parser.CommandProcessor
	parser.SnapshotProcessor
	parser.Finisher
} = (*Recorder)(nil)

// ProcessGameState implements parser.GameStateProcessor.
func (r *Recorder) ProcessGameState(arg *parser.GameStateArg, p *parser.Parser) {
	r.GameStates = append(r.GameStates, *arg)
}

// ProcessCommand implements parser.CommandProcessor.
func (r *Recorder) ProcessCommand(arg *parser.CommandArg, p *parser.Parser) {
	r.Commands = append(r.Commands, arg.Text)
}

// ProcessSnapshot implements parser.SnapshotProcessor.
func (r *Recorder) ProcessSnapshot(arg *parser.SnapshotArg, p *parser.Parser) {
	var snap parser.Snapshot
	snap.CopyFrom(arg.Snapshot)
	r.Snapshots = append(r.Snapshots, snap)
}

// FinishAnalysis implements parser.Finisher.
func (r *Recorder) FinishAnalysis(p *parser.Parser) { r.Finished = true }

// Decode parses data with a fresh Parser, registering plugIns first.
func Decode(rev protocol.Revision, data []byte, plugIns ...interface{}) (*parser.Parser, error) {
	var p parser.Parser
	if err := p.Init(rev, "test"); err != nil {
		return nil, err
	}
	for _, pi := range plugIns {
		if err := p.AddPlugIn(pi); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, protocol.MaxMessageLength)
	return &p, p.ParseCapture(context.Background(), capture.NewReader(bytes.NewReader(data)), buf)
}

// Sink is an in-memory cut destination.
type Sink struct {
	bytes.Buffer

	Closed  bool
	Aborted bool
}

var _ parser.Aborter = (*Sink)(nil)

// Close implements io.Closer.
func (s *Sink) Close() error {
	s.Closed = true
	return nil
}

// Abort implements parser.Aborter.
func (s *Sink) Abort() error {
	s.Aborted = true
	return nil
}

// Sinks collects the destinations created for cuts.
type Sinks struct {
	mu    sync.Mutex
	Sinks []*Sink
}

// Create is a parser.StreamCreator that records a new Sink for each cut.
func (ss *Sinks) Create(cut *parser.CutInfo, p *parser.Parser) (io.WriteCloser, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	s := &Sink{}
	ss.Sinks = append(ss.Sinks, s)
	return s, nil
}
