// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/danjacques/godemocut/analysis"
	"github.com/danjacques/godemocut/batch"
	"github.com/danjacques/godemocut/errcode"
	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/pattern"
	"github.com/danjacques/godemocut/support/dataio"
	"github.com/danjacques/godemocut/support/protostream"
	"github.com/danjacques/godemocut/support/stagingfile"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"gopkg.in/yaml.v3"
)

// ReportFormat is the encoding of an analysis report.
type ReportFormat int

const (
	// ReportYAML is a single YAML document.
	ReportYAML ReportFormat = iota
	// ReportProtoStream is a protostream holding the generation time as a
	// timestamppb.Timestamp, followed by structpb.Struct records: a header
	// record, then one record per event.
	ReportProtoStream
)

// ParseReportFormat parses a report format name, "yaml" or "pb".
func ParseReportFormat(v string) (ReportFormat, error) {
	switch strings.ToLower(v) {
	case "yaml", "yml":
		return ReportYAML, nil
	case "pb", "protostream":
		return ReportProtoStream, nil
	default:
		return 0, errors.Errorf("unknown report format %q", v)
	}
}

func (rf ReportFormat) extension() string {
	if rf == ReportProtoStream {
		return ".pb"
	}
	return ".yaml"
}

// Report is the result of analyzing a capture.
type Report struct {
	File     string `json:"file" yaml:"file"`
	Protocol int    `json:"protocol" yaml:"protocol"`

	GameStates []GameStateReport    `json:"gameStates" yaml:"gameStates"`
	Obituaries []analysis.Obituary  `json:"obituaries" yaml:"obituaries"`
	Chat       []analysis.ChatMatch `json:"chat,omitempty" yaml:"chat,omitempty"`
	Matches    []analysis.Match     `json:"matches" yaml:"matches"`
	MultiFrags []pattern.CutSection `json:"multiFrags" yaml:"multiFrags"`
}

// GameStateReport describes one GameState of a report.
type GameStateReport struct {
	Index      int    `json:"index" yaml:"index"`
	FileOffset uint32 `json:"fileOffset" yaml:"fileOffset"`
	ClientNum  int32  `json:"clientNum" yaml:"clientNum"`

	FirstSnapshotTimeMs int32 `json:"firstSnapshotTimeMs" yaml:"firstSnapshotTimeMs"`
	LastSnapshotTimeMs  int32 `json:"lastSnapshotTimeMs" yaml:"lastSnapshotTimeMs"`
	SnapshotCount       int   `json:"snapshotCount" yaml:"snapshotCount"`
}

// Analyze writes a report of the events of each file.
type Analyze struct {
	Format ReportFormat

	// ChatRules, if not empty, select the chat lines to report.
	ChatRules []analysis.ChatRule
	MultiFrag analysis.MultiFragOptions

	Output Output
}

var _ Job = (*Analyze)(nil)

// Name implements Job.
func (j *Analyze) Name() string { return "analyze" }

// Run implements Job.
func (j *Analyze) Run(ctx context.Context, f *batch.File) error {
	rep, err := j.Analyze(ctx, f)
	if err != nil {
		return err
	}

	path := j.Output.Path(f.Path, "analysis", j.Format.extension())
	sf, err := stagingfile.Create(path)
	if err != nil {
		return errcode.Wrap(err, errcode.WriteFailed)
	}
	cw := dataio.CountingWriter{Writer: sf}
	if err := j.write(&cw, rep); err != nil {
		_ = sf.Abort()
		return errcode.Wrap(err, errcode.WriteFailed)
	}
	if err := sf.Commit(); err != nil {
		return errcode.Wrap(err, errcode.WriteFailed)
	}

	f.Logger.Infof("Wrote %s analysis to %q (%d obituaries, %d chat lines, %d matches).",
		humanize.Bytes(uint64(cw.Count)), path, len(rep.Obituaries), len(rep.Chat), len(rep.Matches))
	return nil
}

// Analyze builds the report of a single file.
func (j *Analyze) Analyze(ctx context.Context, f *batch.File) (*Report, error) {
	var (
		obituaries analysis.Obituaries
		chat       = analysis.Chat{Rules: j.ChatRules}
		matches    analysis.Matches
		multiFrag  = analysis.MultiFrag{Options: j.MultiFrag}
		p          parser.Parser
	)
	err := parseFile(ctx, f, &p, func(p *parser.Parser) error {
		plugIns := []interface{}{&obituaries, &matches, &multiFrag}
		if len(j.ChatRules) > 0 {
			plugIns = append(plugIns, &chat)
		}
		for _, pi := range plugIns {
			if err := p.AddPlugIn(pi); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rep := Report{
		File:       f.Path,
		Protocol:   int(p.Protocol().Revision),
		Obituaries: obituaries.Items(),
		Chat:       chat.Items(),
		Matches:    matches.Items(),
		MultiFrags: multiFrag.Items(),
	}
	for _, gs := range p.GameStates() {
		rep.GameStates = append(rep.GameStates, GameStateReport(gs))
	}
	return &rep, nil
}

func (j *Analyze) write(w io.Writer, rep *Report) error {
	if j.Format == ReportYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return errors.Wrap(err, "encoding YAML report")
		}
		return enc.Close()
	}

	enc := protostream.NewEncoder(w)
	if err := enc.Write(timestamppb.Now()); err != nil {
		return err
	}
	header := map[string]interface{}{
		"kind":     "header",
		"file":     rep.File,
		"protocol": rep.Protocol,
	}
	if err := writeRecord(enc, header); err != nil {
		return err
	}
	for _, rec := range []struct {
		kind   string
		events interface{}
	}{
		{"gameState", rep.GameStates},
		{"obituary", rep.Obituaries},
		{"chat", rep.Chat},
		{"match", rep.Matches},
		{"multiFrag", rep.MultiFrags},
	} {
		events, err := toGeneric(rec.events)
		if err != nil {
			return err
		}
		list, _ := events.([]interface{})
		for _, ev := range list {
			m, ok := ev.(map[string]interface{})
			if !ok {
				return errors.Errorf("%s event is not an object", rec.kind)
			}
			m["kind"] = rec.kind
			if err := writeRecord(enc, m); err != nil {
				return err
			}
		}
	}
	return nil
}

// toGeneric converts v into the generic representation structpb accepts, by
// way of its JSON encoding.
func toGeneric(v interface{}) (interface{}, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encoding record")
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "decoding record")
	}
	return out, nil
}

func writeRecord(enc *protostream.Encoder, m map[string]interface{}) error {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return errors.Wrap(err, "building record")
	}
	return enc.Write(st)
}
