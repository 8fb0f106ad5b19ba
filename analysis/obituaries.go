// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package analysis

import (
	"strconv"

	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/protocol"
)

// WorldIndex is the attacker index of a kill that no player caused.
const WorldIndex = -1

// Obituary is a single kill.
type Obituary struct {
	GameStateIndex int   `json:"gameStateIndex" yaml:"gameStateIndex"`
	ServerTimeMs   int32 `json:"serverTimeMs" yaml:"serverTimeMs"`

	TargetIndex int32  `json:"targetIndex" yaml:"targetIndex"`
	TargetName  string `json:"targetName" yaml:"targetName"`
	TargetTeam  int    `json:"targetTeam" yaml:"targetTeam"`

	// AttackerIndex is the client that caused the kill, or WorldIndex.
	AttackerIndex int32  `json:"attackerIndex" yaml:"attackerIndex"`
	AttackerName  string `json:"attackerName" yaml:"attackerName"`
	AttackerTeam  int    `json:"attackerTeam" yaml:"attackerTeam"`

	MeanOfDeath     int32  `json:"meanOfDeath" yaml:"meanOfDeath"`
	MeanOfDeathName string `json:"meanOfDeathName" yaml:"meanOfDeathName"`
}

// SelfKill returns true if the target killed itself.
func (o *Obituary) SelfKill() bool { return o.AttackerIndex == o.TargetIndex }

// TeamKill returns true if the attacker killed a team mate.
func (o *Obituary) TeamKill() bool {
	return !o.SelfKill() && o.AttackerIndex != WorldIndex && o.TargetTeam != teamFree && o.TargetTeam == o.AttackerTeam
}

const teamFree = 0

// Obituaries extracts kills from obituary event entities.
type Obituaries struct {
	Buffer[Obituary]
}

var _ parser.SnapshotProcessor = (*Obituaries)(nil)

// ProcessSnapshot implements parser.SnapshotProcessor.
func (a *Obituaries) ProcessSnapshot(arg *parser.SnapshotArg, p *parser.Parser) {
	proto := p.Protocol()
	snap := arg.Snapshot
	for i := range snap.Entities {
		es := &snap.Entities[i]
		if ev, ok := proto.EntityEvent(es); !ok || ev != proto.EventObituary {
			continue
		}

		// Event entities persist for several frames.
		if arg.Old != nil {
			if old := arg.Old.Entity(es.Number); old != nil && old.Fields == es.Fields {
				continue
			}
		}

		target := es.Int(protocol.EntOtherEntityNum)
		if target < 0 || target >= protocol.MaxClients {
			continue
		}
		attacker := es.Int(protocol.EntOtherEntityNum2)
		if attacker < 0 || attacker >= protocol.MaxClients {
			attacker = WorldIndex
		}
		mod := es.Int(protocol.EntEventParm)

		ob := Obituary{
			GameStateIndex:  p.GameStateIndex(),
			ServerTimeMs:    snap.ServerTimeMs,
			TargetIndex:     target,
			AttackerIndex:   attacker,
			MeanOfDeath:     mod,
			MeanOfDeathName: proto.MeanOfDeathName(mod),
		}
		ob.TargetName, ob.TargetTeam = playerInfo(p, target)
		if attacker != WorldIndex {
			ob.AttackerName, ob.AttackerTeam = playerInfo(p, attacker)
		} else {
			ob.AttackerName = "world"
		}
		a.Append(ob)
	}
}

// playerInfo returns the color-stripped name and team of a client.
func playerInfo(p *parser.Parser, client int32) (string, int) {
	info := p.ConfigString(p.Protocol().PlayerConfigString(int(client)))
	team, _ := strconv.Atoi(protocol.InfoValue(info, "t"))
	return protocol.StripColors(protocol.InfoValue(info, "n")), team
}
