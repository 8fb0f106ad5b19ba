// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package replay implements the per-file jobs of the cutter: cutting captures
// by time or by pattern, analyzing them, and time shifting them.
//
// Each job processes a single capture and is run by a batch.Runner through
// FileFunc.
package replay

import (
	"context"
	"io"
	"time"

	"github.com/danjacques/godemocut/batch"
	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/errcode"
	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/pattern"
	"github.com/danjacques/godemocut/support/fmtutil"
	"github.com/danjacques/godemocut/support/logging"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Job is a per-file operation.
type Job interface {
	// Name is a short identifier of the job, used in logs and metrics.
	Name() string
	// Run processes a single file.
	Run(ctx context.Context, f *batch.File) error
}

// FileFunc returns a batch.FileFunc that runs job and records its outcome.
func FileFunc(job Job) batch.FileFunc {
	return func(ctx context.Context, f *batch.File) error {
		start := time.Now()
		err := job.Run(ctx, f)
		observeFile(job.Name(), start, err)
		return err
	}
}

// parseFile decodes the capture at f.Path with p, which is initialized for
// the capture's revision. setup is called after Init to add plug-ins and cuts.
func parseFile(ctx context.Context, f *batch.File, p *parser.Parser, setup func(*parser.Parser) error) error {
	f.Logger = logging.Must(f.Logger)

	cf, err := capture.Open(f.Path)
	if err != nil {
		if errcode.Of(err) == errcode.Unknown {
			err = errcode.Wrap(err, errcode.OpenFailed)
		}
		return err
	}
	defer cf.Close()

	p.Logger = f.Logger
	if err := p.Init(cf.Protocol.Revision, f.Path); err != nil {
		return err
	}
	if err := setup(p); err != nil {
		return err
	}

	err = p.ParseCapture(ctx, cf.Reader, f.Buffer)
	f.BytesRead += cf.Offset()
	observeParser(p, cf.Offset())
	return err
}

// cutFile writes each of sections of the capture at f.Path to its own output.
// It returns the paths of the outputs that were written, by section index.
// Sections that matched nothing have an empty path.
func cutFile(ctx context.Context, f *batch.File, sections []pattern.CutSection, out *Output) ([]string, error) {
	paths := make([]string, len(sections))
	cuts := make([]*parser.CutInfo, len(sections))

	var p parser.Parser
	err := parseFile(ctx, f, &p, func(p *parser.Parser) error {
		for i, s := range sections {
			cuts[i] = &parser.CutInfo{
				GameStateIndex: s.GameStateIndex,
				StartTimeMs:    s.StartTimeMs,
				EndTimeMs:      s.EndTimeMs,
				UserData:       i,
				Create: func(cut *parser.CutInfo, p *parser.Parser) (io.WriteCloser, error) {
					i := cut.UserData.(int)
					paths[i] = out.CutPath(f.Path, i)
					f.Logger.Debugf("Creating cut #%d [%s, %s] at %q.", i,
						fmtutil.ServerTime(cut.StartTimeMs), fmtutil.ServerTime(cut.EndTimeMs), paths[i])
					return out.createCapture(paths[i])
				},
			}
			if err := p.AddCut(cuts[i]); err != nil {
				return errors.Wrapf(err, "cut #%d", i)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, cut := range cuts {
		if !cut.Written() {
			continue
		}
		observeCut(cut)
		f.Logger.Infof("Wrote cut #%d to %q (%d snapshots, %s).", i, paths[i],
			cut.SnapshotsWritten(), humanize.Bytes(uint64(cut.BytesWritten())))
	}
	return paths, nil
}
