// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package parser decodes captures message by message, reconstructing the
// GameStates, server commands and snapshots they encode.
//
// A Parser drives any number of plug-ins, which observe the decoded stream,
// and any number of cuts, which re-encode time ranges of the capture into new
// independently playable captures.
package parser

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/protocol"
	"github.com/danjacques/godemocut/protocol/msg"
	"github.com/danjacques/godemocut/support/fmtutil"
	"github.com/danjacques/godemocut/support/logging"

	"github.com/pkg/errors"
)

// Parser decodes a single capture.
//
// A Parser is not safe for concurrent use. It may be reused for another
// capture by calling Init again, which retains its large buffers.
type Parser struct {
	// Logger, if not nil, is used to log decoding details.
	Logger logging.L

	proto    *protocol.Protocol
	filePath string
	plugIns  []plugIn
	cuts     []*CutInfo

	r           msg.Reader
	haveMessage bool
	messageSeq  int32
	fileOffset  uint32

	reliableAck      int32
	serverCommandSeq int32
	serverTime       int32
	clientNum        int32
	checksumFeed     int32
	gameStateIndex   int

	// haveTime is true once the current GameState has a valid snapshot.
	haveTime bool

	configStrings   [protocol.MaxConfigStrings]string
	bigConfigString strings.Builder

	baselines     []protocol.EntityState
	baselineValid []bool

	snapshots    [protocol.PacketBackup]Snapshot
	scratch      Snapshot
	lastSnapshot *Snapshot

	gameStates []GameStateInfo
	commands   []ServerCommand
	gsRecord   GameStateRecord

	// State of the message being parsed.
	msgCommands  []string
	msgSnapshot  *Snapshot
	msgGameState bool
	tokens       []string

	// pending holds accepted commands awaiting the time of a snapshot.
	pending []CommandArg

	// MessageCount is the number of messages parsed.
	MessageCount int
	// InvalidSnapshots is the number of snapshots that could not be resolved.
	InvalidSnapshots int
}

// Init prepares the Parser to decode a capture of the specified revision. All
// previous state, plug-ins and cuts are discarded.
func (p *Parser) Init(rev protocol.Revision, filePath string) error {
	proto, err := protocol.Lookup(rev)
	if err != nil {
		return err
	}
	p.Logger = logging.Must(p.Logger)

	p.proto = proto
	p.filePath = filePath
	p.plugIns = p.plugIns[:0]
	p.cuts = nil

	p.haveMessage = false
	p.messageSeq = 0
	p.fileOffset = 0
	p.reliableAck = 0
	p.serverCommandSeq = 0
	p.clientNum = -1
	p.checksumFeed = 0
	p.gameStateIndex = -1

	p.resetGameState()
	p.pending = p.pending[:0]
	p.gameStates = p.gameStates[:0]
	p.commands = p.commands[:0]
	p.MessageCount = 0
	p.InvalidSnapshots = 0
	return nil
}

func (p *Parser) resetGameState() {
	for i := range p.configStrings {
		p.configStrings[i] = ""
	}
	p.bigConfigString.Reset()

	if p.baselines == nil {
		p.baselines = make([]protocol.EntityState, protocol.MaxGEntities)
		p.baselineValid = make([]bool, protocol.MaxGEntities)
	} else {
		for i := range p.baselines {
			p.baselines[i] = protocol.EntityState{}
			p.baselineValid[i] = false
		}
	}

	for i := range p.snapshots {
		p.snapshots[i].Valid = false
	}
	p.lastSnapshot = nil
	p.serverTime = 0
	p.haveTime = false
}

// AddPlugIn registers a plug-in. v must implement at least one of
// GameStateProcessor, CommandProcessor, SnapshotProcessor or Finisher.
// Plug-ins are invoked in registration order.
func (p *Parser) AddPlugIn(v interface{}) error {
	pi, ok := makePlugIn(v)
	if !ok {
		return errors.Errorf("%T is not a parser plug-in", v)
	}
	p.plugIns = append(p.plugIns, pi)
	return nil
}

// Protocol returns the protocol the Parser was initialized with.
func (p *Parser) Protocol() *protocol.Protocol { return p.proto }

// FilePath returns the path of the capture being parsed.
func (p *Parser) FilePath() string { return p.filePath }

// ConfigString returns the current value of the config string at index, or an
// empty string if index is out of range.
func (p *Parser) ConfigString(index int) string {
	if index < 0 || index >= len(p.configStrings) {
		return ""
	}
	return p.configStrings[index]
}

// GameStateIndex returns the index of the current GameState, or -1 if none was
// parsed yet.
func (p *Parser) GameStateIndex() int { return p.gameStateIndex }

// GameStates returns a summary of each GameState parsed so far.
func (p *Parser) GameStates() []GameStateInfo { return p.gameStates }

// Commands returns the log of accepted server commands.
func (p *Parser) Commands() []ServerCommand { return p.commands }

// ServerTime returns the server time of the most recent valid snapshot.
func (p *Parser) ServerTime() int32 { return p.serverTime }

// ClientNum returns the client number of the player who recorded the capture.
func (p *Parser) ClientNum() int32 { return p.clientNum }

// ParseNextMessage parses a single capture message.
//
// It returns false if parsing need not continue, either because an error
// occurred or because every cut is complete and no plug-in is registered.
func (p *Parser) ParseNextMessage(payload []byte, seq int32, fileOffset uint32) (bool, error) {
	if p.proto == nil {
		return false, errors.New("parser is not initialized")
	}

	if err := p.parseMessage(payload, seq, fileOffset); err != nil {
		p.Logger.Debugf("Failed to parse message %d payload: %s", seq, fmtutil.HexSlice(payload))
		return false, errors.Wrapf(err, "message %d at offset %d", seq, fileOffset)
	}
	if err := p.writeCuts(); err != nil {
		return false, errors.Wrapf(err, "message %d at offset %d", seq, fileOffset)
	}
	return p.wantsMore(), nil
}

func (p *Parser) wantsMore() bool {
	if len(p.plugIns) > 0 || len(p.cuts) == 0 {
		return true
	}
	for _, cut := range p.cuts {
		if !cut.done {
			return true
		}
	}
	return false
}

// FinishParsing completes every open cut and finishes every plug-in. It must
// be called once after the last message.
func (p *Parser) FinishParsing() error {
	p.dispatchCommands()

	var firstErr error
	for _, cut := range p.cuts {
		if err := cut.finish(); err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "finishing cut [%d, %d]", cut.StartTimeMs, cut.EndTimeMs)
		}
	}
	for _, pi := range p.plugIns {
		if pi.finisher != nil {
			pi.finisher.FinishAnalysis(p)
		}
	}
	return firstErr
}

// Abort discards every cut that is still open. Cuts that were already
// completed are left intact.
func (p *Parser) Abort() {
	for _, cut := range p.cuts {
		if err := cut.abort(); err != nil {
			p.Logger.Warnf("Failed to discard cut [%d, %d]: %s", cut.StartTimeMs, cut.EndTimeMs, err)
		}
	}
}

// ParseCapture parses every message from r, then calls FinishParsing. buf must
// be able to hold MaxMessageLength bytes.
//
// ctx is checked between messages. If it is cancelled, or if parsing fails,
// open cuts are aborted and the error is returned.
func (p *Parser) ParseCapture(ctx context.Context, r *capture.Reader, buf []byte) error {
	for {
		if err := ctx.Err(); err != nil {
			p.Abort()
			return err
		}

		m, err := r.Next(buf)
		if err == io.EOF {
			break
		}
		if err != nil {
			p.Abort()
			return err
		}

		more, err := p.ParseNextMessage(m.Data, m.Sequence, m.Offset)
		if err != nil {
			p.Abort()
			return err
		}
		if !more {
			break
		}
	}
	return p.FinishParsing()
}

func (p *Parser) parseMessage(payload []byte, seq int32, fileOffset uint32) error {
	if p.haveMessage && seq <= p.messageSeq {
		return errors.Wrapf(protocol.ErrSequence, "sequence %d does not follow %d", seq, p.messageSeq)
	}
	p.haveMessage = true
	p.messageSeq = seq
	p.fileOffset = fileOffset
	p.MessageCount++

	p.msgCommands = p.msgCommands[:0]
	p.msgSnapshot = nil
	p.msgGameState = false

	r := &p.r
	r.Reset(payload)
	p.reliableAck = r.ReadInt32()
	for {
		op := protocol.ServerOp(r.ReadUint8())
		if err := r.Err(); err != nil {
			return err
		}

		var err error
		switch op {
		case protocol.OpEOF:
			// Commands take the time of the snapshot of their message. Until
			// the GameState has one, they wait for the next.
			if p.haveTime {
				p.dispatchCommands()
			}
			return nil
		case protocol.OpNop:
		case protocol.OpServerCommand:
			err = p.parseCommand()
		case protocol.OpGameState:
			err = p.parseGameState()
		case protocol.OpSnapshot:
			err = p.parseSnapshot()
		default:
			err = errors.Wrapf(protocol.ErrMalformed, "illegal server operation %s", op)
		}
		if err != nil {
			return errors.Wrapf(err, "parsing %s", op)
		}
	}
}

func (p *Parser) parseCommand() error {
	r := &p.r
	seq := r.ReadInt32()
	text := r.ReadString()
	if err := r.Err(); err != nil {
		return err
	}

	// Reliable commands are retransmitted until acknowledged, so a capture
	// sees most of them several times.
	if seq != p.serverCommandSeq+1 {
		return nil
	}
	p.serverCommandSeq = seq
	p.commands = append(p.commands, ServerCommand{Sequence: seq, Text: text})
	p.msgCommands = append(p.msgCommands, text)

	// Config strings apply at once, so the snapshot of the same message sees
	// them. Plug-ins receive the command later, with the value it set.
	p.tokens = protocol.Tokenize(text, p.tokens[:0])
	csIndex, err := p.applyConfigStringCommand(p.tokens)
	if err != nil {
		return err
	}
	arg := CommandArg{
		Sequence:          seq,
		Text:              text,
		ConfigStringIndex: csIndex,
		GameStateIndex:    p.gameStateIndex,
	}
	if csIndex >= 0 {
		arg.ConfigString = p.configStrings[csIndex]
	}
	p.pending = append(p.pending, arg)
	return nil
}

// dispatchCommands hands the pending commands to plug-ins, stamped with the
// current server time.
func (p *Parser) dispatchCommands() {
	for i := range p.pending {
		arg := &p.pending[i]
		arg.ServerTimeMs = p.serverTime
		p.tokens = protocol.Tokenize(arg.Text, p.tokens[:0])
		arg.Tokens = p.tokens
		for _, pi := range p.plugIns {
			if pi.command != nil {
				pi.command.ProcessCommand(arg, p)
			}
		}
	}
	p.pending = p.pending[:0]
}

// applyConfigStringCommand applies "cs" updates and assembles "bcs0", "bcs1",
// "bcs2" big config string fragments. It returns the index of the updated
// config string, or -1.
func (p *Parser) applyConfigStringCommand(tokens []string) (int, error) {
	if len(tokens) < 2 {
		return -1, nil
	}
	switch tokens[0] {
	case "cs", "bcs0", "bcs1", "bcs2":
	default:
		return -1, nil
	}

	index, err := strconv.Atoi(tokens[1])
	if err != nil || index < 0 || index >= protocol.MaxConfigStrings {
		return -1, errors.Wrapf(protocol.ErrIndexRange, "config string %q", tokens[1])
	}
	value := strings.Join(tokens[2:], " ")

	switch tokens[0] {
	case "bcs0":
		p.bigConfigString.Reset()
		p.bigConfigString.WriteString(value)
		return -1, nil
	case "bcs1":
		p.bigConfigString.WriteString(value)
		return -1, nil
	case "bcs2":
		p.bigConfigString.WriteString(value)
		value = p.bigConfigString.String()
		p.bigConfigString.Reset()
	}

	p.configStrings[index] = value
	return index, nil
}

func (p *Parser) parseGameState() error {
	r := &p.r

	// Commands still waiting for a snapshot belong to the previous GameState.
	p.dispatchCommands()
	p.resetGameState()
	p.serverCommandSeq = r.ReadInt32()

	var null protocol.EntityState
	for done := false; !done; {
		op := protocol.ServerOp(r.ReadUint8())
		if err := r.Err(); err != nil {
			return err
		}

		switch op {
		case protocol.OpEOF:
			done = true

		case protocol.OpConfigString:
			index := int(r.ReadInt16())
			if index < 0 || index >= protocol.MaxConfigStrings {
				return errors.Wrapf(protocol.ErrIndexRange, "config string %d", index)
			}
			p.configStrings[index] = r.ReadBigString()

		case protocol.OpBaseline:
			num := r.ReadBits(protocol.GEntityNumBits)
			if num < 0 || num >= protocol.EntityNumNone {
				return errors.Wrapf(protocol.ErrIndexRange, "baseline entity %d", num)
			}
			r.ReadDeltaEntity(p.proto.EntityFields, &null, &p.baselines[num], num)
			p.baselineValid[num] = true

		default:
			return errors.Wrapf(protocol.ErrMalformed, "illegal GameState operation %s", op)
		}
	}
	p.clientNum = r.ReadInt32()
	p.checksumFeed = r.ReadInt32()
	if err := r.Err(); err != nil {
		return err
	}

	p.gameStateIndex++
	p.msgGameState = true
	p.gameStates = append(p.gameStates, GameStateInfo{
		Index:      p.gameStateIndex,
		FileOffset: p.fileOffset,
		ClientNum:  p.clientNum,
	})
	p.Logger.Debugf("Parsed GameState #%d at offset %d (client %d).", p.gameStateIndex, p.fileOffset, p.clientNum)

	arg := GameStateArg{
		Index:                 p.gameStateIndex,
		FileOffset:            p.fileOffset,
		ServerCommandSequence: p.serverCommandSeq,
		ClientNum:             p.clientNum,
	}
	for _, pi := range p.plugIns {
		if pi.gameState != nil {
			pi.gameState.ProcessGameState(&arg, p)
		}
	}
	return nil
}

func (p *Parser) parseSnapshot() error {
	r := &p.r
	snap := &p.scratch
	snap.Valid = false
	snap.MessageNum = p.messageSeq
	snap.GameStateIndex = p.gameStateIndex
	snap.ServerTimeMs = r.ReadInt32()
	deltaNum := r.ReadUint8()
	snap.SnapFlags = r.ReadUint8()
	maskLen := int(r.ReadUint8())
	if err := r.Err(); err != nil {
		return err
	}
	if maskLen > protocol.MaxAreaMaskBytes {
		return errors.Wrapf(protocol.ErrMalformed, "area mask of %d bytes", maskLen)
	}
	if cap(snap.AreaMask) < maskLen {
		snap.AreaMask = make([]byte, maskLen)
	}
	snap.AreaMask = snap.AreaMask[:maskLen]
	r.ReadData(snap.AreaMask)

	// Resolve the reference frame. A snapshot whose reference is unavailable
	// is still read, so the message stays in sync, but is discarded.
	valid := p.gameStateIndex >= 0
	var old *Snapshot
	if deltaNum != 0 {
		ref := p.messageSeq - deltaNum
		old = &p.snapshots[ref&protocol.PacketMask]
		if !old.Valid || old.MessageNum != ref || old.GameStateIndex != p.gameStateIndex {
			p.Logger.Debugf("Snapshot in message %d deltas from unavailable message %d.", p.messageSeq, ref)
			old, valid = nil, false
		}
	}

	var (
		oldPS   *protocol.PlayerState
		oldEnts []protocol.EntityState
	)
	if old != nil {
		oldPS, oldEnts = &old.PlayerState, old.Entities
	}
	r.ReadDeltaPlayerState(p.proto.PlayerFields, oldPS, &snap.PlayerState)
	snap.Entities = r.ReadPacketEntities(p.proto.EntityFields, p.baselines, oldEnts, snap.Entities[:0])
	if err := r.Err(); err != nil {
		return err
	}
	if !valid {
		p.InvalidSnapshots++
		return nil
	}

	// Commit the scratch snapshot into the ring. The slot's previous storage
	// becomes the next scratch.
	snap.Valid = true
	slot := &p.snapshots[p.messageSeq&protocol.PacketMask]
	*slot, p.scratch = p.scratch, *slot

	prev := p.lastSnapshot
	if prev == slot {
		prev = nil
	}
	p.lastSnapshot = slot
	p.msgSnapshot = slot
	p.serverTime = slot.ServerTimeMs
	p.haveTime = true

	gs := &p.gameStates[len(p.gameStates)-1]
	if gs.SnapshotCount == 0 {
		gs.FirstSnapshotTimeMs = slot.ServerTimeMs
	}
	gs.LastSnapshotTimeMs = slot.ServerTimeMs
	gs.SnapshotCount++

	arg := SnapshotArg{
		Snapshot: slot,
		Old:      prev,
	}
	for _, pi := range p.plugIns {
		if pi.snapshot != nil {
			pi.snapshot.ProcessSnapshot(&arg, p)
		}
	}
	return nil
}

// GameStateRecord returns the current GameState, as a GameState message
// encoding it would carry. The record is reused by the next call.
func (p *Parser) GameStateRecord() *GameStateRecord {
	rec := &p.gsRecord
	rec.ServerCommandSequence = p.serverCommandSeq
	rec.ClientNum = p.clientNum
	rec.ChecksumFeed = p.checksumFeed

	rec.ConfigStrings = rec.ConfigStrings[:0]
	for i, v := range p.configStrings {
		if v != "" {
			rec.ConfigStrings = append(rec.ConfigStrings, ConfigString{Index: i, Value: v})
		}
	}

	rec.Baselines = rec.Baselines[:0]
	for i, valid := range p.baselineValid {
		if valid {
			rec.Baselines = append(rec.Baselines, p.baselines[i])
		}
	}
	return rec
}
