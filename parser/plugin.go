// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package parser

// GameStateArg describes a newly decoded GameState.
type GameStateArg struct {
	// Index is the GameState's index within the capture. Indices start at 0
	// rather than 1, so they can index GameStates() directly; -1 is left free
	// to mean "any GameState" in cut requests.
	Index int
	// FileOffset is the file offset of the message carrying the GameState.
	FileOffset uint32
	// ServerCommandSequence is the reliable sequence the GameState starts at.
	ServerCommandSequence int32
	// ClientNum is the client number of the player who recorded the capture.
	ClientNum int32
}

// CommandArg describes an accepted server command.
type CommandArg struct {
	Sequence int32
	Text     string
	// Tokens is the tokenized command. It is only valid during the callback.
	Tokens []string

	// ConfigStringIndex is the index of the config string the command updated,
	// or -1 if it did not update one. ConfigString is the value it set.
	ConfigStringIndex int
	ConfigString      string

	// ServerTimeMs is the server time of the snapshot in the message carrying
	// the command. Commands that precede the first snapshot of their GameState
	// take the time of that snapshot.
	ServerTimeMs   int32
	GameStateIndex int
}

// SnapshotArg describes a decoded snapshot.
type SnapshotArg struct {
	Snapshot *Snapshot

	// Old is the previous valid snapshot of the same GameState, or nil. Entity
	// events present in both are repeats.
	Old *Snapshot
}

// A plug-in observes the decode stream. A plug-in may implement any subset of
// the following interfaces; a value implementing none of them is rejected by
// AddPlugIn.

// GameStateProcessor receives every decoded GameState.
type GameStateProcessor interface {
	ProcessGameState(arg *GameStateArg, p *Parser)
}

// CommandProcessor receives every accepted server command, once the snapshot
// of its message has been processed.
type CommandProcessor interface {
	ProcessCommand(arg *CommandArg, p *Parser)
}

// SnapshotProcessor receives every valid snapshot.
type SnapshotProcessor interface {
	ProcessSnapshot(arg *SnapshotArg, p *Parser)
}

// Finisher is called once after the last message was parsed.
type Finisher interface {
	FinishAnalysis(p *Parser)
}

type plugIn struct {
	gameState GameStateProcessor
	command   CommandProcessor
	snapshot  SnapshotProcessor
	finisher  Finisher
}

func makePlugIn(v interface{}) (plugIn, bool) {
	var pi plugIn
	pi.gameState, _ = v.(GameStateProcessor)
	pi.command, _ = v.(CommandProcessor)
	pi.snapshot, _ = v.(SnapshotProcessor)
	pi.finisher, _ = v.(Finisher)
	return pi, pi.gameState != nil || pi.command != nil || pi.snapshot != nil || pi.finisher != nil
}
