// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package analysis

import (
	"strconv"
	"strings"

	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/pattern"
)

// Match is a played match.
type Match struct {
	GameStateIndex int `json:"gameStateIndex" yaml:"gameStateIndex"`

	// StartTimeMs and EndTimeMs bound the match itself.
	StartTimeMs int32 `json:"startTimeMs" yaml:"startTimeMs"`
	EndTimeMs   int32 `json:"endTimeMs" yaml:"endTimeMs"`

	// CountdownStartTimeMs is the start of the pre-match countdown, if
	// HasCountdown is true.
	HasCountdown         bool  `json:"hasCountdown" yaml:"hasCountdown"`
	CountdownStartTimeMs int32 `json:"countdownStartTimeMs" yaml:"countdownStartTimeMs"`

	// IntermissionEndTimeMs is the end of the post-match intermission, if
	// HasIntermission is true.
	HasIntermission       bool  `json:"hasIntermission" yaml:"hasIntermission"`
	IntermissionEndTimeMs int32 `json:"intermissionEndTimeMs" yaml:"intermissionEndTimeMs"`
}

type matchState int

const (
	matchIdle matchState = iota
	matchCountdown
	matchPlaying
	matchIntermission
)

// Matches detects match boundaries from the warmup, level start time and
// intermission config strings.
type Matches struct {
	Buffer[Match]

	state matchState
	cur   Match

	// needTime is true if the current phase started with the GameState, and
	// takes the time of its first snapshot.
	needTime   bool
	lastTimeMs int32
}

var _ interface {
	parser.GameStateProcessor
	parser.CommandProcessor
	parser.SnapshotProcessor
	parser.Finisher
} = (*Matches)(nil)

// ProcessGameState implements parser.GameStateProcessor.
func (a *Matches) ProcessGameState(arg *parser.GameStateArg, p *parser.Parser) {
	a.finish()
	a.cur = Match{GameStateIndex: arg.Index}

	cs := p.Protocol().CS
	if strings.TrimSpace(p.ConfigString(cs.Intermission)) == "1" {
		return
	}
	switch warmup := warmupValue(p.ConfigString(cs.Warmup)); {
	case warmup > 0:
		a.state = matchCountdown
		a.cur.HasCountdown = true
	case warmup == 0:
		a.state = matchPlaying
	default:
		return
	}
	a.needTime = true
}

// ProcessCommand implements parser.CommandProcessor.
func (a *Matches) ProcessCommand(arg *parser.CommandArg, p *parser.Parser) {
	if arg.ConfigStringIndex < 0 {
		return
	}
	cs := p.Protocol().CS
	value := arg.ConfigString
	t := arg.ServerTimeMs

	switch arg.ConfigStringIndex {
	case cs.Warmup:
		switch warmup := warmupValue(value); {
		case warmup > 0:
			// A match in progress that goes back to a countdown was restarted
			// and is discarded.
			if a.state != matchCountdown {
				a.state = matchCountdown
				a.cur = Match{GameStateIndex: arg.GameStateIndex, HasCountdown: true, CountdownStartTimeMs: t}
				a.needTime = false
			}
		case warmup == 0:
			a.startMatch(arg.GameStateIndex, t)
		default:
			// Back to waiting for players.
			if a.state != matchIntermission {
				a.state = matchIdle
			}
		}

	case cs.LevelStartTime:
		if a.state == matchCountdown {
			a.startMatch(arg.GameStateIndex, t)
		}

	case cs.Intermission:
		if strings.TrimSpace(value) == "1" && a.state == matchPlaying {
			a.cur.EndTimeMs = t
			a.cur.HasIntermission = true
			a.state = matchIntermission
		}
	}
}

func (a *Matches) startMatch(gameStateIndex int, t int32) {
	switch a.state {
	case matchCountdown:
		a.cur.StartTimeMs = t
	case matchIdle:
		a.cur = Match{GameStateIndex: gameStateIndex, StartTimeMs: t}
	default:
		return
	}
	a.state = matchPlaying
	a.needTime = false
}

// ProcessSnapshot implements parser.SnapshotProcessor.
func (a *Matches) ProcessSnapshot(arg *parser.SnapshotArg, p *parser.Parser) {
	t := arg.Snapshot.ServerTimeMs
	a.lastTimeMs = t
	if !a.needTime {
		return
	}
	a.needTime = false

	switch a.state {
	case matchCountdown:
		a.cur.CountdownStartTimeMs = t
	case matchPlaying:
		a.cur.StartTimeMs = t
	}
}

// FinishAnalysis implements parser.Finisher.
func (a *Matches) FinishAnalysis(p *parser.Parser) { a.finish() }

func (a *Matches) finish() {
	switch a.state {
	case matchPlaying:
		if a.needTime {
			break
		}
		a.cur.EndTimeMs = a.lastTimeMs
		a.Append(a.cur)
	case matchIntermission:
		a.cur.IntermissionEndTimeMs = a.lastTimeMs
		a.Append(a.cur)
	}
	a.state = matchIdle
	a.needTime = false
}

// Candidates returns a candidate cut section for each match. A countdown or
// an intermission is a natural bound, so it is not padded.
func (a *Matches) Candidates() []pattern.Candidate {
	matches := a.Items()
	candidates := make([]pattern.Candidate, len(matches))
	for i, m := range matches {
		c := &candidates[i]
		c.GameStateIndex = m.GameStateIndex
		c.StartTimeMs, c.EndTimeMs = m.StartTimeMs, m.EndTimeMs
		if m.HasCountdown {
			c.StartTimeMs, c.FixedStart = m.CountdownStartTimeMs, true
		}
		if m.HasIntermission {
			c.EndTimeMs, c.FixedEnd = m.IntermissionEndTimeMs, true
		}
	}
	return candidates
}

// warmupValue parses the warmup config string. An empty value means no
// warmup, a negative value means waiting for players, and a positive value is
// the time at which the countdown ends.
func warmupValue(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
