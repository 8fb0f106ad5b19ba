// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"context"

	"github.com/danjacques/godemocut/batch"
	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/protocol"

	"github.com/pkg/errors"
)

// Time shift snapshot count limits.
const (
	MinTimeShiftSnapshots = 1
	MaxTimeShiftSnapshots = 8
)

// ClampTimeShiftSnapshots clamps a snapshot count to
// [MinTimeShiftSnapshots, MaxTimeShiftSnapshots].
func ClampTimeShiftSnapshots(n int) int {
	switch {
	case n < MinTimeShiftSnapshots:
		return MinTimeShiftSnapshots
	case n > MaxTimeShiftSnapshots:
		return MaxTimeShiftSnapshots
	default:
		return n
	}
}

// TimeShift rewrites each file so that every entity other than the followed
// player is taken from a later snapshot. This compensates the network delay
// of the recording client, whose view of other players lags behind its own.
type TimeShift struct {
	// Snapshots is the number of snapshots to shift other entities by. It is
	// clamped to [MinTimeShiftSnapshots, MaxTimeShiftSnapshots].
	Snapshots int

	Output Output
}

var _ Job = (*TimeShift)(nil)

// Name implements Job.
func (j *TimeShift) Name() string { return "time_shift" }

// Run implements Job.
func (j *TimeShift) Run(ctx context.Context, f *batch.File) (err error) {
	path := j.Output.Path(f.Path, "shifted", "")
	out, err := j.Output.createCapture(path)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Abort()
		}
	}()

	shifter := timeShifter{shift: ClampTimeShiftSnapshots(j.Snapshots)}
	var p parser.Parser
	err = parseFile(ctx, f, &p, func(p *parser.Parser) error {
		shifter.out = parser.NewOutputStream(out, p.Protocol())
		return p.AddPlugIn(&shifter)
	})
	if err == nil {
		err = shifter.err
	}
	if err != nil {
		return err
	}

	if err := shifter.out.WriteEnd(); err != nil {
		return errors.Wrap(err, "finishing output")
	}
	if err := out.Close(); err != nil {
		return err
	}
	f.Logger.Infof("Wrote time shifted capture to %q (%d snapshots shifted by %d).", path,
		shifter.out.SnapshotsWritten(), shifter.shift)
	return nil
}

// shiftFrame is a snapshot waiting for a later snapshot to take its entities
// from, along with the commands that preceded it.
type shiftFrame struct {
	commands []string
	snap     parser.Snapshot
}

// timeShifter is a parser plug-in that writes a time shifted copy of the
// capture to out.
type timeShifter struct {
	shift int
	out   *parser.OutputStream
	err   error
	// started is true once a GameState has been written.
	started bool

	// pending holds commands received while no frame is queued.
	pending []string
	// frames holds up to shift snapshots of the current GameState, oldest
	// first.
	frames []*shiftFrame
	free   []*shiftFrame
	merged parser.Snapshot
}

var _ interface {
	parser.GameStateProcessor
	parser.CommandProcessor
	parser.SnapshotProcessor
	parser.Finisher
} = (*timeShifter)(nil)

func (ts *timeShifter) ProcessGameState(arg *parser.GameStateArg, p *parser.Parser) {
	ts.flush()
	if ts.err == nil {
		ts.err = ts.out.WriteGameState(p.GameStateRecord())
		ts.started = true
	}
}

// ProcessCommand attaches the command to the newest frame, which is the
// snapshot it was received with. Commands that precede every frame wait.
func (ts *timeShifter) ProcessCommand(arg *parser.CommandArg, p *parser.Parser) {
	if n := len(ts.frames); n > 0 {
		fr := ts.frames[n-1]
		fr.commands = append(fr.commands, arg.Text)
		return
	}
	ts.pending = append(ts.pending, arg.Text)
}

func (ts *timeShifter) ProcessSnapshot(arg *parser.SnapshotArg, p *parser.Parser) {
	if ts.err != nil {
		return
	}

	fr := ts.alloc()
	fr.commands = append(fr.commands[:0], ts.pending...)
	fr.snap.CopyFrom(arg.Snapshot)
	ts.pending = ts.pending[:0]
	ts.frames = append(ts.frames, fr)

	if len(ts.frames) > ts.shift {
		ts.emit(ts.frames[0], arg.Snapshot)
		ts.frames = ts.frames[1:]
	}
}

func (ts *timeShifter) FinishAnalysis(p *parser.Parser) { ts.flush() }

// flush writes every pending frame. They have no later snapshot to take
// their entities from, so the newest snapshot is used for all of them.
func (ts *timeShifter) flush() {
	if n := len(ts.frames); n > 0 {
		latest := &ts.frames[n-1].snap
		for _, fr := range ts.frames {
			ts.emit(fr, latest)
		}
		ts.frames = ts.frames[:0]
	}
	if len(ts.pending) > 0 && ts.err == nil && ts.started {
		ts.err = ts.out.WriteMessage(ts.pending, nil)
		ts.pending = ts.pending[:0]
	}
}

// emit writes fr's snapshot, with every entity except the followed player
// taken from future.
func (ts *timeShifter) emit(fr *shiftFrame, future *parser.Snapshot) {
	defer func() { ts.free = append(ts.free, fr) }()
	if ts.err != nil {
		return
	}

	snap := &fr.snap
	followed := snap.PlayerState.Int(protocol.PSClientNum)

	m := &ts.merged
	m.CopyFrom(snap)
	m.Entities = m.Entities[:0]
	own := snap.Entity(followed)
	for i := range future.Entities {
		es := &future.Entities[i]
		if es.Number == followed {
			continue
		}
		if own != nil && es.Number > own.Number {
			m.Entities = append(m.Entities, *own)
			own = nil
		}
		m.Entities = append(m.Entities, *es)
	}
	if own != nil {
		m.Entities = append(m.Entities, *own)
	}

	ts.err = ts.out.WriteMessage(fr.commands, m)
}

func (ts *timeShifter) alloc() *shiftFrame {
	if n := len(ts.free); n > 0 {
		fr := ts.free[n-1]
		ts.free = ts.free[:n-1]
		return fr
	}
	return &shiftFrame{}
}
