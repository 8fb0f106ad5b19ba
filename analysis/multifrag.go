// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package analysis

import (
	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/pattern"
	"github.com/danjacques/godemocut/protocol"
)

// Special tracked player values for MultiFragOptions.Player.
const (
	// TrackDemoTaker tracks the player who recorded the capture.
	TrackDemoTaker = -1
	// TrackFollowed tracks the player whose view the capture shows, which
	// differs from the demo taker while spectating.
	TrackFollowed = -2
)

// MultiFragOptions configures a MultiFrag analyzer.
type MultiFragOptions struct {
	// MinFragCount is the number of kills a sequence needs. It is clamped to
	// [pattern.MinFragCount, pattern.MaxFragCount].
	MinFragCount int
	// MaxGapMs is the longest interval between two kills of a sequence. If
	// zero, pattern.DefaultMaxFragGapMs is used.
	MaxGapMs int32

	// Player is the client to track, TrackDemoTaker or TrackFollowed.
	Player int32

	AllowSelfKills bool
	AllowTeamKills bool
	// AllowDeaths keeps a sequence going when the tracked player dies.
	AllowDeaths bool
}

// MultiFrag finds sequences of kills by one player.
type MultiFrag struct {
	Options MultiFragOptions

	Buffer[pattern.CutSection]

	obituaries Obituaries
	frags      []pattern.Frag
	streak     int
}

var _ interface {
	parser.SnapshotProcessor
	parser.Finisher
} = (*MultiFrag)(nil)

// Frags returns the kills attributed to the tracked player, in arrival order.
func (a *MultiFrag) Frags() []pattern.Frag { return a.frags }

// ProcessSnapshot implements parser.SnapshotProcessor.
func (a *MultiFrag) ProcessSnapshot(arg *parser.SnapshotArg, p *parser.Parser) {
	first := a.obituaries.Len()
	a.obituaries.ProcessSnapshot(arg, p)
	obits := a.obituaries.Items()
	if first == len(obits) {
		return
	}

	tracked := a.trackedPlayer(arg.Snapshot, p)
	for i := first; i < len(obits); i++ {
		a.addObituary(&obits[i], tracked)
	}
}

func (a *MultiFrag) trackedPlayer(snap *parser.Snapshot, p *parser.Parser) int32 {
	switch a.Options.Player {
	case TrackDemoTaker:
		return p.ClientNum()
	case TrackFollowed:
		return snap.PlayerState.Int(protocol.PSClientNum)
	default:
		return a.Options.Player
	}
}

func (a *MultiFrag) addObituary(ob *Obituary, tracked int32) {
	switch {
	case ob.AttackerIndex != tracked:
		if ob.TargetIndex == tracked && !a.Options.AllowDeaths {
			a.streak++
		}
		return

	case ob.SelfKill():
		if !a.Options.AllowSelfKills {
			if !a.Options.AllowDeaths {
				a.streak++
			}
			return
		}

	case ob.TeamKill():
		if !a.Options.AllowTeamKills {
			return
		}
	}

	a.frags = append(a.frags, pattern.Frag{
		GameStateIndex: ob.GameStateIndex,
		ServerTimeMs:   ob.ServerTimeMs,
		Streak:         a.streak,
	})
}

// FinishAnalysis implements parser.Finisher.
func (a *MultiFrag) FinishAnalysis(p *parser.Parser) {
	a.Reset()
	for _, cs := range pattern.FindFragSections(a.frags, a.Options.MinFragCount, a.Options.MaxGapMs) {
		a.Append(cs)
	}
}

// Candidates returns a candidate cut section for each kill sequence.
func (a *MultiFrag) Candidates() []pattern.Candidate {
	sections := a.Items()
	candidates := make([]pattern.Candidate, len(sections))
	for i, cs := range sections {
		candidates[i].CutSection = cs
	}
	return candidates
}
