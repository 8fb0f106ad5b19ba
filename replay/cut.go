// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"context"
	"fmt"

	"github.com/danjacques/godemocut/analysis"
	"github.com/danjacques/godemocut/batch"
	"github.com/danjacques/godemocut/cache"
	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/pattern"
	"github.com/danjacques/godemocut/support/logging"

	"github.com/pkg/errors"
)

// CutByTime cuts explicit time ranges out of each file.
type CutByTime struct {
	// Sections are the ranges to cut. A GameStateIndex of -1 matches the
	// range in any GameState.
	Sections []pattern.CutSection

	Output Output
}

var _ Job = (*CutByTime)(nil)

// Name implements Job.
func (j *CutByTime) Name() string { return "cut_time" }

// Run implements Job.
func (j *CutByTime) Run(ctx context.Context, f *batch.File) error {
	if len(j.Sections) == 0 {
		return errors.New("no time ranges to cut")
	}
	_, err := cutFile(ctx, f, j.Sections, &j.Output)
	return err
}

// Analyzer is a parser plug-in that proposes cut candidates.
type Analyzer interface {
	Candidates() []pattern.Candidate
}

// Pattern selects the sections of a capture worth cutting.
type Pattern interface {
	// Name identifies the kind of pattern.
	Name() string
	// Fingerprint identifies the pattern's configuration. Two patterns with
	// the same fingerprint select the same sections.
	Fingerprint() string
	// NewAnalyzer returns a fresh analyzer for one file.
	NewAnalyzer() Analyzer
}

// ChatPattern selects chat lines matching its rules.
type ChatPattern struct {
	Rules []analysis.ChatRule
}

// Name implements Pattern.
func (cp *ChatPattern) Name() string { return "chat" }

// Fingerprint implements Pattern.
func (cp *ChatPattern) Fingerprint() string { return fmt.Sprintf("chat%+v", cp.Rules) }

// NewAnalyzer implements Pattern.
func (cp *ChatPattern) NewAnalyzer() Analyzer { return &analysis.Chat{Rules: cp.Rules} }

// MatchPattern selects whole matches, from countdown to intermission.
type MatchPattern struct{}

// Name implements Pattern.
func (MatchPattern) Name() string { return "match" }

// Fingerprint implements Pattern.
func (MatchPattern) Fingerprint() string { return "match" }

// NewAnalyzer implements Pattern.
func (MatchPattern) NewAnalyzer() Analyzer { return &analysis.Matches{} }

// MultiFragPattern selects sequences of kills by a single player.
type MultiFragPattern struct {
	Options analysis.MultiFragOptions
}

// Name implements Pattern.
func (mp *MultiFragPattern) Name() string { return "multi_frag" }

// Fingerprint implements Pattern.
func (mp *MultiFragPattern) Fingerprint() string { return fmt.Sprintf("frag%+v", mp.Options) }

// NewAnalyzer implements Pattern.
func (mp *MultiFragPattern) NewAnalyzer() Analyzer { return &analysis.MultiFrag{Options: mp.Options} }

// CutByPattern cuts the sections of each file selected by a Pattern.
//
// Each file is parsed twice: once to analyze it and resolve its sections, and
// once to cut them. If a Cache is available, resolved sections are stored in
// it and the analysis pass is skipped for files analyzed before.
type CutByPattern struct {
	Pattern Pattern
	Options pattern.Options
	Output  Output

	// Cache, if not nil, holds resolved sections between runs.
	Cache *cache.Store
}

var _ Job = (*CutByPattern)(nil)

// Name implements Job.
func (j *CutByPattern) Name() string { return "cut_" + j.Pattern.Name() }

// Run implements Job.
func (j *CutByPattern) Run(ctx context.Context, f *batch.File) error {
	sections, err := j.Sections(ctx, f)
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		f.Logger.Infof("No %s sections found.", j.Pattern.Name())
		return nil
	}
	f.Logger.Debugf("Cutting %d section(s): %v", len(sections), sections)

	// The analysis pass read the file once already.
	f.BytesRead = 0
	_, err = cutFile(ctx, f, sections, &j.Output)
	return err
}

// Sections returns the resolved sections of the file.
func (j *CutByPattern) Sections(ctx context.Context, f *batch.File) ([]pattern.CutSection, error) {
	f.Logger = logging.Must(f.Logger)

	var key []byte
	if j.Cache != nil {
		var err error
		if key, err = cache.Key(f.Path, j.fingerprint()); err != nil {
			return nil, errors.Wrap(err, "building cache key")
		}

		switch sections, ok, err := j.Cache.Get(key); {
		case err != nil:
			// A broken cache only costs an analysis pass.
			cacheLookups.WithLabelValues("error").Inc()
			f.Logger.Warnf("Failed to read section cache: %s", err)
		case ok:
			cacheLookups.WithLabelValues("hit").Inc()
			return sections, nil
		default:
			cacheLookups.WithLabelValues("miss").Inc()
		}
	}

	analyzer := j.Pattern.NewAnalyzer()
	var p parser.Parser
	err := parseFile(ctx, f, &p, func(p *parser.Parser) error { return p.AddPlugIn(analyzer) })
	if err != nil {
		return nil, err
	}
	sections := pattern.Resolve(analyzer.Candidates(), j.Options, p.GameStates())

	if key != nil {
		if err := j.Cache.Put(key, sections); err != nil {
			f.Logger.Warnf("Failed to write section cache: %s", err)
		}
	}
	return sections, nil
}

func (j *CutByPattern) fingerprint() string {
	return fmt.Sprintf("%s|%+v", j.Pattern.Fingerprint(), j.Options)
}
