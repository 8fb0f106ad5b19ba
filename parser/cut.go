// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package parser

import (
	"io"
	"strings"

	"github.com/pkg/errors"
)

// StreamCreator opens the destination of a cut. It is called lazily, when the
// first message inside the cut's range is parsed, so cuts that never match
// create nothing.
type StreamCreator func(cut *CutInfo, p *Parser) (io.WriteCloser, error)

// Aborter is implemented by cut destinations that can discard partially
// written output. If a destination does not implement it, it is closed.
type Aborter interface {
	Abort() error
}

// CutInfo describes a time range of a capture to write to a new capture.
type CutInfo struct {
	// GameStateIndex binds the cut to a GameState. If it is -1, the cut matches
	// server times in any GameState.
	GameStateIndex int
	// StartTimeMs and EndTimeMs are the inclusive server time range of the cut.
	StartTimeMs int32
	EndTimeMs   int32

	// Create opens the cut's destination.
	Create StreamCreator
	// UserData is available to Create.
	UserData interface{}

	stream io.WriteCloser
	out    *OutputStream
	done   bool
}

// Done returns true if the cut will not be written to any further.
func (cut *CutInfo) Done() bool { return cut.done }

// Written returns true if the cut created its destination.
func (cut *CutInfo) Written() bool { return cut.out != nil }

// SnapshotsWritten returns the number of snapshots written to the cut.
func (cut *CutInfo) SnapshotsWritten() int {
	if cut.out == nil {
		return 0
	}
	return cut.out.SnapshotsWritten()
}

// BytesWritten returns the number of capture bytes written to the cut.
func (cut *CutInfo) BytesWritten() int64 {
	if cut.out == nil {
		return 0
	}
	return cut.out.BytesWritten()
}

func (cut *CutInfo) open() bool { return cut.stream != nil }

// finish completes the cut's output, if it has any.
func (cut *CutInfo) finish() error {
	cut.done = true
	if cut.stream == nil {
		return nil
	}

	stream := cut.stream
	cut.stream = nil
	if err := cut.out.WriteEnd(); err != nil {
		abortStream(stream)
		return err
	}
	return stream.Close()
}

// abort discards the cut's output, if it is open.
func (cut *CutInfo) abort() error {
	cut.done = true
	if cut.stream == nil {
		return nil
	}
	stream := cut.stream
	cut.stream = nil
	return abortStream(stream)
}

func abortStream(s io.WriteCloser) error {
	if a, ok := s.(Aborter); ok {
		return a.Abort()
	}
	return s.Close()
}

// AddCut registers a cut. Cuts must be added after Init and before the first
// message is parsed.
func (p *Parser) AddCut(cut *CutInfo) error {
	switch {
	case cut.Create == nil:
		return errors.New("cut has no stream creator")
	case cut.StartTimeMs > cut.EndTimeMs:
		return errors.Errorf("cut start (%d) is after its end (%d)", cut.StartTimeMs, cut.EndTimeMs)
	case cut.GameStateIndex < -1:
		return errors.Errorf("invalid cut GameState index %d", cut.GameStateIndex)
	}
	p.cuts = append(p.cuts, cut)
	return nil
}

func (p *Parser) writeCuts() error {
	for _, cut := range p.cuts {
		if cut.done {
			continue
		}
		if err := p.writeCut(cut); err != nil {
			if aerr := cut.abort(); aerr != nil {
				p.Logger.Warnf("Failed to discard cut [%d, %d]: %s", cut.StartTimeMs, cut.EndTimeMs, aerr)
			}
			return errors.Wrapf(err, "writing cut [%d, %d]", cut.StartTimeMs, cut.EndTimeMs)
		}
	}
	return nil
}

func (p *Parser) writeCut(cut *CutInfo) error {
	if cut.GameStateIndex >= 0 {
		switch {
		case p.gameStateIndex < cut.GameStateIndex:
			return nil
		case p.gameStateIndex > cut.GameStateIndex:
			return cut.finish()
		}
	}

	if p.msgGameState && cut.open() {
		if err := cut.out.WriteGameState(p.GameStateRecord()); err != nil {
			return err
		}
	}

	snap := p.msgSnapshot
	if snap == nil {
		if cut.open() && len(p.msgCommands) > 0 {
			return cut.out.WriteMessage(p.msgCommands, nil)
		}
		return nil
	}

	switch t := snap.ServerTimeMs; {
	case t < cut.StartTimeMs:
		if cut.open() {
			return cut.finish()
		}
		return nil

	case t > cut.EndTimeMs:
		if cut.open() || cut.GameStateIndex >= 0 {
			return cut.finish()
		}
		// An unbound cut may still match a later GameState.
		return nil
	}

	if cut.open() {
		return cut.out.WriteMessage(p.msgCommands, snap)
	}

	stream, err := cut.Create(cut, p)
	if err != nil {
		return errors.Wrap(err, "creating cut stream")
	}
	cut.stream = stream
	cut.out = NewOutputStream(stream, p.proto)
	if err := cut.out.WriteGameState(p.GameStateRecord()); err != nil {
		return err
	}

	// The synthesized GameState already holds this message's config string
	// updates.
	commands := make([]string, 0, len(p.msgCommands))
	for _, cmd := range p.msgCommands {
		if !isConfigStringCommand(cmd) {
			commands = append(commands, cmd)
		}
	}
	return cut.out.WriteMessage(commands, snap)
}

func isConfigStringCommand(cmd string) bool {
	name := cmd
	if idx := strings.IndexAny(cmd, " \t"); idx >= 0 {
		name = cmd[:idx]
	}
	switch name {
	case "cs", "bcs0", "bcs1", "bcs2":
		return true
	default:
		return false
	}
}
