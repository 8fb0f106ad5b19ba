// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package parser_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/parser/parsertest"
	"github.com/danjacques/godemocut/protocol"
	"github.com/danjacques/godemocut/protocol/msg"

	"github.com/pkg/errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestParser(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Parser")
}

// moving returns a scenario whose entities move every frame, with frames
// every 50ms in [1000, 2000].
func moving(rev protocol.Revision) *parsertest.Scenario {
	s := parsertest.NewScenario(rev, 0, map[int]string{0: `\mapname\q3dm6`})
	for t := int32(1000); t <= 2000; t += 50 {
		s.Entities = s.Entities[:0]
		for num := int32(1); num <= 3; num++ {
			es := protocol.EntityState{Number: num * 4}
			es.SetFloat(protocol.EntPosTrBase0, float32(t)/10+float32(num))
			es.SetInt(protocol.EntModelIndex, num)
			s.Entities = append(s.Entities, es)
		}
		s.Player.SetInt(protocol.PSCommandTime, t)
		s.Player.Stats[0] = t % 100
		s.Frame(t, "print tick")
	}
	return s
}

func snapshotTimes(snaps []parser.Snapshot) []int32 {
	times := make([]int32, len(snaps))
	for i := range snaps {
		times[i] = snaps[i].ServerTimeMs
	}
	return times
}

// timedCommand is a command as a plug-in received it.
type timedCommand struct {
	Text           string
	ServerTimeMs   int32
	GameStateIndex int
	ConfigString   string
}

type commandLog []timedCommand

func (l *commandLog) ProcessCommand(arg *parser.CommandArg, p *parser.Parser) {
	*l = append(*l, timedCommand{arg.Text, arg.ServerTimeMs, arg.GameStateIndex, arg.ConfigString})
}

var _ = Describe("Parser", func() {
	var rec *parsertest.Recorder

	BeforeEach(func() {
		rec = &parsertest.Recorder{}
	})

	It("rejects unsupported revisions", func() {
		var p parser.Parser
		Expect(errors.Cause(p.Init(protocol.Revision(42), "x"))).To(Equal(protocol.ErrUnsupported))
	})

	It("rejects values that are not plug-ins", func() {
		var p parser.Parser
		Expect(p.Init(protocol.Revision68, "x")).To(Succeed())
		Expect(p.AddPlugIn(42)).ToNot(Succeed())
	})

	It("reconstructs every snapshot of a capture", func() {
		data := moving(protocol.Revision68).Bytes()
		p, err := parsertest.Decode(protocol.Revision68, data, rec)
		Expect(err).ToNot(HaveOccurred())

		Expect(rec.Finished).To(BeTrue())
		Expect(rec.GameStates).To(HaveLen(1))
		Expect(rec.Snapshots).To(HaveLen(21))
		last := rec.Snapshots[20]
		Expect(last.ServerTimeMs).To(Equal(int32(2000)))
		Expect(last.Entities).To(HaveLen(3))
		Expect(last.Entity(8).Float(protocol.EntPosTrBase0)).To(Equal(float32(202)))
		Expect(last.PlayerState.Stats[0]).To(Equal(int32(0)))
		Expect(p.ConfigString(0)).To(Equal(`\mapname\q3dm6`))
		Expect(p.ServerTime()).To(Equal(int32(2000)))
		Expect(p.InvalidSnapshots).To(Equal(0))
	})

	It("rejects messages whose sequence does not increase", func() {
		c := parsertest.New(protocol.Revision68)
		c.Message(5, func(w *msg.Writer) {})
		c.Message(5, func(w *msg.Writer) {})
		_, err := parsertest.Decode(protocol.Revision68, c.Bytes())
		Expect(errors.Cause(err)).To(Equal(protocol.ErrSequence))
	})

	It("reports truncated payloads as malformed", func() {
		c := parsertest.New(protocol.Revision68)
		c.Raw(1, []byte{0, 0, 0, 0, byte(protocol.OpServerCommand), 1})
		_, err := parsertest.Decode(protocol.Revision68, c.Bytes())
		Expect(errors.Cause(err)).To(Equal(protocol.ErrMalformed))
	})

	It("reports unknown operations as malformed", func() {
		c := parsertest.New(protocol.Revision68)
		c.Raw(1, []byte{0, 0, 0, 0, byte(protocol.OpDownload)})
		_, err := parsertest.Decode(protocol.Revision68, c.Bytes())
		Expect(errors.Cause(err)).To(Equal(protocol.ErrMalformed))
	})

	It("stamps commands with the snapshot of their message", func() {
		s := parsertest.NewScenario(protocol.Revision68, 0, nil)
		s.Frame(1000)
		s.Frame(1100, `chat "bob: gg"`)
		s.Commands(`cs 5 "0"`)
		s.GameState(0, nil)
		s.Commands("print early")
		s.Frame(500, "print first")
		s.Frame(600)

		var log commandLog
		_, err := parsertest.Decode(protocol.Revision68, s.Bytes(), &log)
		Expect(err).ToNot(HaveOccurred())
		Expect(log).To(Equal(commandLog{
			{`chat "bob: gg"`, 1100, 0, ""},
			{`cs 5 "0"`, 1100, 0, "0"},
			{"print early", 500, 1, ""},
			{"print first", 500, 1, ""},
		}))
	})

	It("accepts each reliable command once, in order", func() {
		c := parsertest.New(protocol.Revision68)
		c.Message(1, func(w *msg.Writer) {
			c.GameState(w, &parser.GameStateRecord{ServerCommandSequence: 10})
		})
		c.Message(2, func(w *msg.Writer) {
			parsertest.Command(w, 11, "print one")
			parsertest.Command(w, 11, "print one")
		})
		c.Message(3, func(w *msg.Writer) {
			parsertest.Command(w, 11, "print one")
			parsertest.Command(w, 13, "print three")
			parsertest.Command(w, 12, "print two")
		})
		p, err := parsertest.Decode(protocol.Revision68, c.Bytes(), rec)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Commands).To(Equal([]string{"print one", "print two"}))
		Expect(p.Commands()).To(HaveLen(2))
		Expect(p.Commands()[1].Sequence).To(Equal(int32(12)))
	})

	It("applies config string commands", func() {
		s := parsertest.NewScenario(protocol.Revision68, 0, nil)
		s.Commands(
			`cs 544 "n\Player\t\0"`,
			`bcs0 600 "first "`,
			`bcs1 600 "second "`,
			`bcs2 600 "third"`)

		p, err := parsertest.Decode(protocol.Revision68, s.Bytes())
		Expect(err).ToNot(HaveOccurred())
		Expect(p.ConfigString(544)).To(Equal(`n\Player\t\0`))
		Expect(p.ConfigString(600)).To(Equal("first second third"))
	})

	It("rejects config string indices out of range", func() {
		s := parsertest.NewScenario(protocol.Revision68, 0, nil)
		s.Commands(`cs 4096 "x"`)
		_, err := parsertest.Decode(protocol.Revision68, s.Bytes())
		Expect(errors.Cause(err)).To(Equal(protocol.ErrIndexRange))
	})

	It("skips snapshots whose reference frame is unavailable", func() {
		c := parsertest.New(protocol.Revision68)
		c.Message(1, func(w *msg.Writer) {
			c.GameState(w, &parser.GameStateRecord{})
		})
		ref := parser.Snapshot{ServerTimeMs: 100}
		c.Message(2, func(w *msg.Writer) { c.Snapshot(w, 0, nil, &ref) })
		c.Message(3, func(w *msg.Writer) {
			c.Snapshot(w, 2, &ref, &parser.Snapshot{ServerTimeMs: 150})
		})
		c.Message(4, func(w *msg.Writer) {
			c.Snapshot(w, 2, &ref, &parser.Snapshot{ServerTimeMs: 200})
		})

		p, err := parsertest.Decode(protocol.Revision68, c.Bytes(), rec)
		Expect(err).ToNot(HaveOccurred())
		Expect(snapshotTimes(rec.Snapshots)).To(Equal([]int32{100, 200}))
		Expect(p.InvalidSnapshots).To(Equal(1))
	})

	It("does not delta across GameStates", func() {
		c := parsertest.New(protocol.Revision68)
		ref := parser.Snapshot{ServerTimeMs: 100}
		c.Message(1, func(w *msg.Writer) { c.GameState(w, &parser.GameStateRecord{}) })
		c.Message(2, func(w *msg.Writer) { c.Snapshot(w, 0, nil, &ref) })
		c.Message(3, func(w *msg.Writer) { c.GameState(w, &parser.GameStateRecord{}) })
		c.Message(4, func(w *msg.Writer) {
			c.Snapshot(w, 2, &ref, &parser.Snapshot{ServerTimeMs: 150})
		})

		p, err := parsertest.Decode(protocol.Revision68, c.Bytes(), rec)
		Expect(err).ToNot(HaveOccurred())
		Expect(snapshotTimes(rec.Snapshots)).To(Equal([]int32{100}))
		Expect(p.InvalidSnapshots).To(Equal(1))
	})

	It("tracks the server time span of each GameState", func() {
		s := parsertest.NewScenario(protocol.Revision68, 3, nil)
		s.Frame(1000)
		s.Frame(1100)
		s.GameState(3, nil)
		s.Frame(50)
		s.Frame(75)
		s.Frame(90)

		p, err := parsertest.Decode(protocol.Revision68, s.Bytes(), rec)
		Expect(err).ToNot(HaveOccurred())
		Expect(p.GameStates()).To(Equal([]parser.GameStateInfo{
			{Index: 0, FileOffset: 0, ClientNum: 3, FirstSnapshotTimeMs: 1000, LastSnapshotTimeMs: 1100, SnapshotCount: 2},
			{Index: 1, FileOffset: p.GameStates()[1].FileOffset, ClientNum: 3, FirstSnapshotTimeMs: 50, LastSnapshotTimeMs: 90, SnapshotCount: 3},
		}))
		Expect(p.GameStates()[1].FileOffset).To(BeNumerically(">", 0))
		Expect(rec.GameStates[1].Index).To(Equal(1))
	})

	It("decodes Quake Live captures", func() {
		data := moving(protocol.Revision91).Bytes()
		_, err := parsertest.Decode(protocol.Revision91, data, rec)
		Expect(err).ToNot(HaveOccurred())
		Expect(rec.Snapshots).To(HaveLen(21))
	})

	It("stops when the context is cancelled", func() {
		data := moving(protocol.Revision68).Bytes()

		var p parser.Parser
		Expect(p.Init(protocol.Revision68, "x")).To(Succeed())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := p.ParseCapture(ctx, capture.NewReader(bytes.NewReader(data)), make([]byte, protocol.MaxMessageLength))
		Expect(err).To(Equal(context.Canceled))
	})
})

var _ = Describe("Cuts", func() {
	var (
		sinks *parsertest.Sinks
		p     parser.Parser
	)

	BeforeEach(func() {
		sinks = &parsertest.Sinks{}
		Expect(p.Init(protocol.Revision68, "x")).To(Succeed())
	})

	parse := func(data []byte) error {
		return p.ParseCapture(context.Background(), capture.NewReader(bytes.NewReader(data)), make([]byte, protocol.MaxMessageLength))
	}

	It("rejects inverted ranges", func() {
		Expect(p.AddCut(&parser.CutInfo{StartTimeMs: 5, EndTimeMs: 4, Create: sinks.Create})).ToNot(Succeed())
	})

	It("reproduces the whole capture for an unbounded cut", func() {
		src := &parsertest.Recorder{}
		data := moving(protocol.Revision68).Bytes()
		_, err := parsertest.Decode(protocol.Revision68, data, src)
		Expect(err).ToNot(HaveOccurred())

		cut := parser.CutInfo{GameStateIndex: -1, StartTimeMs: -1 << 30, EndTimeMs: 1 << 30, Create: sinks.Create}
		Expect(p.AddCut(&cut)).To(Succeed())
		Expect(parse(data)).To(Succeed())
		Expect(sinks.Sinks).To(HaveLen(1))
		Expect(sinks.Sinks[0].Closed).To(BeTrue())
		Expect(cut.SnapshotsWritten()).To(Equal(21))

		out := &parsertest.Recorder{}
		_, err = parsertest.Decode(protocol.Revision68, sinks.Sinks[0].Bytes(), out)
		Expect(err).ToNot(HaveOccurred())
		Expect(out.Snapshots).To(HaveLen(len(src.Snapshots)))
		for i := range src.Snapshots {
			Expect(out.Snapshots[i].ServerTimeMs).To(Equal(src.Snapshots[i].ServerTimeMs))
			Expect(out.Snapshots[i].Entities).To(Equal(src.Snapshots[i].Entities))
			Expect(out.Snapshots[i].PlayerState).To(Equal(src.Snapshots[i].PlayerState))
		}
		Expect(out.Commands).To(Equal(src.Commands))
	})

	It("writes only the snapshots inside the cut range", func() {
		cut := parser.CutInfo{GameStateIndex: 0, StartTimeMs: 1100, EndTimeMs: 1300, Create: sinks.Create}
		Expect(p.AddCut(&cut)).To(Succeed())
		Expect(parse(moving(protocol.Revision68).Bytes())).To(Succeed())
		Expect(cut.Done()).To(BeTrue())

		out := &parsertest.Recorder{}
		op, err := parsertest.Decode(protocol.Revision68, sinks.Sinks[0].Bytes(), out)
		Expect(err).ToNot(HaveOccurred())
		Expect(snapshotTimes(out.Snapshots)).To(Equal([]int32{1100, 1150, 1200, 1250, 1300}))
		Expect(op.ConfigString(0)).To(Equal(`\mapname\q3dm6`))
	})

	It("carries config string updates into the synthesized GameState", func() {
		s := parsertest.NewScenario(protocol.Revision68, 0, nil)
		s.Frame(1000, `cs 544 "n\Early"`)
		s.Frame(2000, `cs 545 "n\Late"`, "print hello")
		s.Frame(3000)

		cut := parser.CutInfo{GameStateIndex: 0, StartTimeMs: 2000, EndTimeMs: 3000, Create: sinks.Create}
		Expect(p.AddCut(&cut)).To(Succeed())
		Expect(parse(s.Bytes())).To(Succeed())

		out := &parsertest.Recorder{}
		op, err := parsertest.Decode(protocol.Revision68, sinks.Sinks[0].Bytes(), out)
		Expect(err).ToNot(HaveOccurred())
		Expect(op.ConfigString(544)).To(Equal(`n\Early`))
		Expect(op.ConfigString(545)).To(Equal(`n\Late`))
		Expect(out.Commands).To(Equal([]string{"print hello"}))
	})

	It("creates nothing for a cut that never matches", func() {
		cut := parser.CutInfo{GameStateIndex: 0, StartTimeMs: 50000, EndTimeMs: 60000, Create: sinks.Create}
		Expect(p.AddCut(&cut)).To(Succeed())
		Expect(parse(moving(protocol.Revision68).Bytes())).To(Succeed())
		Expect(sinks.Sinks).To(BeEmpty())
		Expect(cut.Written()).To(BeFalse())
	})

	It("binds cuts to their GameState", func() {
		s := parsertest.NewScenario(protocol.Revision68, 0, nil)
		s.Frame(100)
		s.Frame(200)
		s.GameState(0, nil)
		s.Frame(100)
		s.Frame(150)

		cut := parser.CutInfo{GameStateIndex: 1, StartTimeMs: 0, EndTimeMs: 1000, Create: sinks.Create}
		Expect(p.AddCut(&cut)).To(Succeed())
		Expect(parse(s.Bytes())).To(Succeed())

		out := &parsertest.Recorder{}
		_, err := parsertest.Decode(protocol.Revision68, sinks.Sinks[0].Bytes(), out)
		Expect(err).ToNot(HaveOccurred())
		Expect(snapshotTimes(out.Snapshots)).To(Equal([]int32{100, 150}))
	})

	It("stops early once every cut is complete", func() {
		cut := parser.CutInfo{GameStateIndex: 0, StartTimeMs: 1000, EndTimeMs: 1050, Create: sinks.Create}
		Expect(p.AddCut(&cut)).To(Succeed())
		Expect(parse(moving(protocol.Revision68).Bytes())).To(Succeed())
		Expect(p.MessageCount).To(BeNumerically("<", 22))
	})

	It("aborts open cuts when parsing fails", func() {
		s := parsertest.NewScenario(protocol.Revision68, 0, nil)
		s.Frame(1000)
		s.Raw(s.Seq()+1, []byte{0, 0, 0, 0, byte(protocol.OpDownload)})

		cut := parser.CutInfo{GameStateIndex: -1, StartTimeMs: 0, EndTimeMs: 5000, Create: sinks.Create}
		Expect(p.AddCut(&cut)).To(Succeed())
		Expect(parse(s.Bytes())).ToNot(Succeed())
		Expect(sinks.Sinks).To(HaveLen(1))
		Expect(sinks.Sinks[0].Aborted).To(BeTrue())
		Expect(sinks.Sinks[0].Closed).To(BeFalse())
	})
})
