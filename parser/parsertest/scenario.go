// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package parsertest

import (
	"fmt"

	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/protocol"
	"github.com/danjacques/godemocut/protocol/msg"
)

// Scenario builds a well-formed capture from high-level frames. Each frame is
// one message, and snapshots delta from the previous frame's snapshot.
type Scenario struct {
	*Capture

	seq    int32
	cmdSeq int32

	last    *parser.Snapshot
	lastSeq int32

	// Entities are the entities included in the next frame's snapshot. Tests
	// may modify it between frames.
	Entities []protocol.EntityState
	// Player is the player state included in the next frame's snapshot.
	Player protocol.PlayerState
}

// NewScenario starts a capture of the specified revision with a GameState
// holding configStrings.
func NewScenario(rev protocol.Revision, clientNum int32, configStrings map[int]string) *Scenario {
	s := Scenario{
		Capture: New(rev),
	}
	s.Player.SetInt(protocol.PSClientNum, clientNum)
	s.GameState(clientNum, configStrings)
	return &s
}

// Seq returns the sequence number of the most recently written message.
func (s *Scenario) Seq() int32 { return s.seq }

// GameState writes a new GameState message.
func (s *Scenario) GameState(clientNum int32, configStrings map[int]string) {
	gs := parser.GameStateRecord{
		ServerCommandSequence: s.cmdSeq,
		ClientNum:             clientNum,
		ChecksumFeed:          1234,
	}
	for i := 0; i < protocol.MaxConfigStrings; i++ {
		if v, ok := configStrings[i]; ok {
			gs.ConfigStrings = append(gs.ConfigStrings, parser.ConfigString{Index: i, Value: v})
		}
	}

	s.seq++
	s.Message(s.seq, func(w *msg.Writer) { s.Capture.GameState(w, &gs) })
	s.last = nil
}

// Frame writes a message carrying commands and a snapshot at timeMs built
// from Entities and Player.
func (s *Scenario) Frame(timeMs int32, commands ...string) {
	snap := parser.Snapshot{
		ServerTimeMs: timeMs,
		AreaMask:     []byte{0xFF},
		PlayerState:  s.Player,
		Entities:     append([]protocol.EntityState(nil), s.Entities...),
	}

	s.seq++
	s.Message(s.seq, func(w *msg.Writer) {
		for _, cmd := range commands {
			s.cmdSeq++
			Command(w, s.cmdSeq, cmd)
		}
		if s.last != nil {
			s.Snapshot(w, s.seq-s.lastSeq, s.last, &snap)
		} else {
			s.Snapshot(w, 0, nil, &snap)
		}
	})
	s.last, s.lastSeq = &snap, s.seq

	// Event entities only live for a single snapshot.
	kept := s.Entities[:0]
	for _, es := range s.Entities {
		if es.Int(protocol.EntType) < s.Proto.EntityTypeEvents {
			kept = append(kept, es)
		}
	}
	s.Entities = kept
}

// Commands writes a message carrying only commands.
func (s *Scenario) Commands(commands ...string) {
	s.seq++
	s.Message(s.seq, func(w *msg.Writer) {
		for _, cmd := range commands {
			s.cmdSeq++
			Command(w, s.cmdSeq, cmd)
		}
	})
}

// Kill queues an obituary event entity for the next frame. attacker may be
// -1 for a world kill.
func (s *Scenario) Kill(target, attacker, mod int32) {
	num := int32(protocol.MaxClients + len(s.Entities))
	for s.hasEntity(num) {
		num++
	}

	if attacker < 0 {
		attacker = protocol.EntityNumNone - 1
	}
	es := protocol.EntityState{Number: num}
	es.SetInt(protocol.EntType, s.Proto.EntityTypeEvents+s.Proto.EventObituary)
	es.SetInt(protocol.EntOtherEntityNum, target)
	es.SetInt(protocol.EntOtherEntityNum2, attacker)
	es.SetInt(protocol.EntEventParm, mod)
	s.addEntity(es)
}

func (s *Scenario) hasEntity(num int32) bool {
	for i := range s.Entities {
		if s.Entities[i].Number == num {
			return true
		}
	}
	return false
}

func (s *Scenario) addEntity(es protocol.EntityState) {
	i := 0
	for i < len(s.Entities) && s.Entities[i].Number < es.Number {
		i++
	}
	s.Entities = append(s.Entities, protocol.EntityState{})
	copy(s.Entities[i+1:], s.Entities[i:])
	s.Entities[i] = es
}

// PlayerInfo returns a player config string value.
func PlayerInfo(name string, team int) string {
	return fmt.Sprintf(`n\%s\t\%d\model\sarge`, name, team)
}

// Players returns config strings naming each of names, starting at client 0.
func Players(proto *protocol.Protocol, names ...string) map[int]string {
	cs := map[int]string{
		proto.CS.ServerInfo: `\sv_hostname\test\mapname\q3dm17`,
	}
	for i, name := range names {
		cs[proto.PlayerConfigString(i)] = PlayerInfo(name, 0)
	}
	return cs
}
