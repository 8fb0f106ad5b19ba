// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"context"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danjacques/godemocut/analysis"
	"github.com/danjacques/godemocut/batch"
	"github.com/danjacques/godemocut/cache"
	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/errcode"
	"github.com/danjacques/godemocut/parser/parsertest"
	"github.com/danjacques/godemocut/pattern"
	"github.com/danjacques/godemocut/protocol"
	"github.com/danjacques/godemocut/support/protostream"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
	"gopkg.in/yaml.v3"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

func TestReplay(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Replay")
}

// duel builds a capture with frames every 50ms in [1000, 2000]. Entity 0 is
// the recording player and entity 4 another player; both are positioned at the
// frame's server time. Client 0 kills client 1 at 1200, 1400 and 1600, and
// client 1 says "gg wp" at 1800.
func duel() []byte {
	proto, _ := protocol.Lookup(protocol.Revision68)
	s := parsertest.NewScenario(protocol.Revision68, 0, parsertest.Players(proto, "alice", "bob"))
	for t := int32(1000); t <= 2000; t += 50 {
		s.Entities = s.Entities[:0]
		for _, num := range []int32{0, 4} {
			es := protocol.EntityState{Number: num}
			es.SetFloat(protocol.EntPosTrBase0, float32(t))
			s.Entities = append(s.Entities, es)
		}
		switch t {
		case 1200:
			s.Kill(1, 0, 10)
		case 1400:
			s.Kill(2, 0, 10)
		case 1600:
			s.Kill(3, 0, 10)
		}
		s.Player.SetInt(protocol.PSCommandTime, t)

		if t == 1800 {
			s.Frame(t, `chat "bob: gg wp"`)
		} else {
			s.Frame(t)
		}
	}
	return s.Bytes()
}

func decodeFile(path string, plugIns ...interface{}) *parsertest.Recorder {
	cf, err := capture.Open(path)
	Expect(err).ToNot(HaveOccurred())
	defer cf.Close()

	data, err := ioutil.ReadAll(readerOf(cf))
	Expect(err).ToNot(HaveOccurred())

	rec := &parsertest.Recorder{}
	_, err = parsertest.Decode(cf.Protocol.Revision, data, append(plugIns, rec)...)
	Expect(err).ToNot(HaveOccurred())
	return rec
}

// readerOf re-encodes the records of cf into an uncompressed capture stream.
func readerOf(cf *capture.File) io.Reader {
	pr, pw := io.Pipe()
	go func() {
		cw := capture.NewWriter(pw)
		buf := make([]byte, protocol.MaxMessageLength)
		for {
			m, err := cf.Next(buf)
			if err == io.EOF {
				pw.CloseWithError(cw.WriteEnd())
				return
			}
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			if err := cw.WriteMessage(m.Sequence, m.Data); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
	}()
	return pr
}

func snapshotTimes(rec *parsertest.Recorder) []int32 {
	times := make([]int32, len(rec.Snapshots))
	for i := range rec.Snapshots {
		times[i] = rec.Snapshots[i].ServerTimeMs
	}
	return times
}

func newFile(path string) *batch.File {
	return &batch.File{
		Path:   path,
		Buffer: make([]byte, protocol.MaxMessageLength),
	}
}

var _ = Describe("Output", func() {
	DescribeTable("derives output paths",
		func(out Output, input, tag, ext, expected string) {
			Expect(out.Path(input, tag, ext)).To(Equal(expected))
		},
		Entry("alongside the input", Output{}, "/demos/duel.dm_68", "cut_0", "", "/demos/duel_cut_0.dm_68"),
		Entry("dropping input compression", Output{}, "/demos/duel.dm_68.gz", "cut_2", "", "/demos/duel_cut_2.dm_68"),
		Entry("adding output compression", Output{Compression: capture.CompressionZstd}, "/demos/duel.dm_91", "shifted", "",
			"/demos/duel_shifted.dm_91.zst"),
		Entry("in an output folder", Output{Folder: "/out"}, "/demos/duel.dm_68", "cut_1", "", "/out/duel_cut_1.dm_68"),
		Entry("with another extension", Output{Compression: capture.CompressionGzip}, "/demos/duel.dm_68", "analysis", ".yaml",
			"/demos/duel_analysis.yaml"),
	)
})

var _ = Describe("Jobs", func() {
	var tdir, input string

	BeforeEach(func() {
		var err error
		tdir, err = ioutil.TempDir("", "replay_test")
		Expect(err).ToNot(HaveOccurred())

		input = filepath.Join(tdir, "duel.dm_68")
		Expect(ioutil.WriteFile(input, duel(), 0644)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	Context("CutByTime", func() {
		It("writes each range to its own capture", func() {
			job := CutByTime{Sections: []pattern.CutSection{
				{GameStateIndex: -1, StartTimeMs: 1100, EndTimeMs: 1300},
				{GameStateIndex: 0, StartTimeMs: 1900, EndTimeMs: 5000},
				{GameStateIndex: -1, StartTimeMs: 8000, EndTimeMs: 9000},
			}}
			Expect(FileFunc(&job)(context.Background(), newFile(input))).To(Succeed())

			Expect(snapshotTimes(decodeFile(filepath.Join(tdir, "duel_cut_0.dm_68")))).To(Equal(
				[]int32{1100, 1150, 1200, 1250, 1300}))
			Expect(snapshotTimes(decodeFile(filepath.Join(tdir, "duel_cut_1.dm_68")))).To(Equal(
				[]int32{1900, 1950, 2000}))
			_, err := os.Stat(filepath.Join(tdir, "duel_cut_2.dm_68"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("writes compressed captures", func() {
			outDir := filepath.Join(tdir, "out")
			job := CutByTime{
				Sections: []pattern.CutSection{{GameStateIndex: -1, StartTimeMs: 1000, EndTimeMs: 2000}},
				Output:   Output{Folder: outDir, Compression: capture.CompressionZstd},
			}
			Expect(job.Run(context.Background(), newFile(input))).To(Succeed())

			rec := decodeFile(filepath.Join(outDir, "duel_cut_0.dm_68.zst"))
			Expect(rec.Snapshots).To(HaveLen(21))
			Expect(rec.Snapshots[20].Entity(4).Float(protocol.EntPosTrBase0)).To(Equal(float32(2000)))
		})

		It("leaves no output for a malformed capture", func() {
			c := parsertest.New(protocol.Revision68)
			c.Raw(1, []byte{0, 0, 0, 0, byte(protocol.OpServerCommand), 1})
			bad := filepath.Join(tdir, "bad.dm_68")
			Expect(ioutil.WriteFile(bad, c.Bytes(), 0644)).To(Succeed())

			job := CutByTime{Sections: []pattern.CutSection{{GameStateIndex: -1, StartTimeMs: 0, EndTimeMs: 5000}}}
			err := job.Run(context.Background(), newFile(bad))
			Expect(errcode.Of(err)).To(Equal(errcode.MalformedMessage))

			matches, err := filepath.Glob(filepath.Join(tdir, "bad*"))
			Expect(err).ToNot(HaveOccurred())
			Expect(matches).To(Equal([]string{bad}))
		})

		It("reports unsupported and missing files", func() {
			job := CutByTime{Sections: []pattern.CutSection{{GameStateIndex: -1, EndTimeMs: 5000}}}

			err := job.Run(context.Background(), newFile(filepath.Join(tdir, "duel.dm_12")))
			Expect(errcode.Of(err)).To(Equal(errcode.UnsupportedProtocol))

			err = job.Run(context.Background(), newFile(filepath.Join(tdir, "missing.dm_68")))
			Expect(errcode.Of(err)).To(Equal(errcode.OpenFailed))
		})
	})

	Context("CutByPattern", func() {
		It("cuts chat lines", func() {
			job := CutByPattern{
				Pattern: &ChatPattern{Rules: []analysis.ChatRule{{Operator: analysis.StartsWith, Pattern: "GG"}}},
			}
			Expect(job.Run(context.Background(), newFile(input))).To(Succeed())
			rec := decodeFile(filepath.Join(tdir, "duel_cut_0.dm_68"))
			Expect(snapshotTimes(rec)).To(Equal([]int32{1800}))
			Expect(rec.Commands).To(ContainElement(`chat "bob: gg wp"`))
		})

		It("cuts multi-frags, padded and clamped to the GameState", func() {
			job := CutByPattern{
				Pattern: &MultiFragPattern{Options: analysis.MultiFragOptions{
					MinFragCount: 3,
					Player:       analysis.TrackFollowed,
				}},
				Options: pattern.Options{EndOffsetSec: 1},
			}
			f := newFile(input)
			sections, err := job.Sections(context.Background(), f)
			Expect(err).ToNot(HaveOccurred())
			Expect(sections).To(Equal([]pattern.CutSection{{GameStateIndex: 0, StartTimeMs: 1200, EndTimeMs: 2000}}))

			Expect(job.Run(context.Background(), f)).To(Succeed())
			rec := decodeFile(filepath.Join(tdir, "duel_cut_0.dm_68"), &analysis.Obituaries{})
			Expect(rec.Snapshots).To(HaveLen(17))
		})

		It("cuts a match already in progress through the end of the capture", func() {
			job := CutByPattern{Pattern: MatchPattern{}, Options: pattern.Options{StartOffsetSec: 10, EndOffsetSec: 10}}
			Expect(job.Run(context.Background(), newFile(input))).To(Succeed())
			Expect(decodeFile(filepath.Join(tdir, "duel_cut_0.dm_68")).Snapshots).To(HaveLen(21))
		})

		It("writes nothing when no section is found", func() {
			job := CutByPattern{Pattern: &ChatPattern{Rules: []analysis.ChatRule{{Pattern: "rematch"}}}}
			Expect(job.Run(context.Background(), newFile(input))).To(Succeed())
			_, err := os.Stat(filepath.Join(tdir, "duel_cut_0.dm_68"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("stores resolved sections in the cache", func() {
			store, err := cache.Open("", nil)
			Expect(err).ToNot(HaveOccurred())
			defer store.Close()

			job := CutByPattern{
				Pattern: &ChatPattern{Rules: []analysis.ChatRule{{Pattern: "wp"}}},
				Cache:   store,
			}
			f := newFile(input)
			sections, err := job.Sections(context.Background(), f)
			Expect(err).ToNot(HaveOccurred())
			Expect(f.BytesRead).ToNot(BeZero())

			key, err := cache.Key(input, job.fingerprint())
			Expect(err).ToNot(HaveOccurred())
			cached, ok, err := store.Get(key)
			Expect(err).ToNot(HaveOccurred())
			Expect(ok).To(BeTrue())
			Expect(cached).To(Equal(sections))

			// A cached file is not parsed again.
			f = newFile(input)
			again, err := job.Sections(context.Background(), f)
			Expect(err).ToNot(HaveOccurred())
			Expect(again).To(Equal(sections))
			Expect(f.BytesRead).To(BeZero())
		})
	})

	Context("Analyze", func() {
		rules := []analysis.ChatRule{{Pattern: "gg"}}

		It("writes a YAML report", func() {
			job := Analyze{Format: ReportYAML, ChatRules: rules,
				MultiFrag: analysis.MultiFragOptions{MinFragCount: 2, Player: analysis.TrackFollowed}}
			Expect(job.Run(context.Background(), newFile(input))).To(Succeed())

			data, err := ioutil.ReadFile(filepath.Join(tdir, "duel_analysis.yaml"))
			Expect(err).ToNot(HaveOccurred())
			var rep Report
			Expect(yaml.Unmarshal(data, &rep)).To(Succeed())

			Expect(rep.Protocol).To(Equal(68))
			Expect(rep.GameStates).To(Equal([]GameStateReport{{
				Index:               0,
				FileOffset:          0,
				ClientNum:           0,
				FirstSnapshotTimeMs: 1000,
				LastSnapshotTimeMs:  2000,
				SnapshotCount:       21,
			}}))
			Expect(rep.Obituaries).To(HaveLen(3))
			Expect(rep.Obituaries[0].AttackerName).To(Equal("alice"))
			Expect(rep.Obituaries[0].TargetName).To(Equal("bob"))
			Expect(rep.Chat).To(HaveLen(1))
			Expect(rep.Chat[0].Player).To(Equal("bob"))
			Expect(rep.MultiFrags).To(Equal([]pattern.CutSection{{GameStateIndex: 0, StartTimeMs: 1200, EndTimeMs: 1600}}))
		})

		It("writes a protostream report", func() {
			job := Analyze{Format: ReportProtoStream, ChatRules: rules}
			Expect(job.Run(context.Background(), newFile(input))).To(Succeed())

			fd, err := os.Open(filepath.Join(tdir, "duel_analysis.pb"))
			Expect(err).ToNot(HaveOccurred())
			defer fd.Close()

			dec := protostream.NewDecoder(fd)
			var generated timestamppb.Timestamp
			Expect(dec.Read(&generated)).To(Succeed())
			Expect(generated.AsTime()).To(BeTemporally("~", time.Now(), time.Minute))

			kinds := map[string]int{}
			for {
				var st structpb.Struct
				err := dec.Read(&st)
				if err == io.EOF {
					break
				}
				Expect(err).ToNot(HaveOccurred())
				kinds[st.Fields["kind"].GetStringValue()]++
			}
			Expect(kinds).To(Equal(map[string]int{
				"header":    1,
				"gameState": 1,
				"obituary":  3,
				"chat":      1,
				"match":     1,
				"multiFrag": 1,
			}))
		})

		It("parses report formats", func() {
			f, err := ParseReportFormat("YAML")
			Expect(err).ToNot(HaveOccurred())
			Expect(f).To(Equal(ReportYAML))
			f, err = ParseReportFormat("pb")
			Expect(err).ToNot(HaveOccurred())
			Expect(f).To(Equal(ReportProtoStream))
			_, err = ParseReportFormat("xml")
			Expect(err).To(HaveOccurred())
		})
	})

	Context("TimeShift", func() {
		It("takes other entities from later snapshots", func() {
			job := TimeShift{Snapshots: 2}
			Expect(job.Run(context.Background(), newFile(input))).To(Succeed())

			rec := decodeFile(filepath.Join(tdir, "duel_shifted.dm_68"))
			Expect(rec.Snapshots).To(HaveLen(21))
			Expect(rec.Commands).To(ContainElement(`chat "bob: gg wp"`))

			first := &rec.Snapshots[0]
			Expect(first.ServerTimeMs).To(Equal(int32(1000)))
			Expect(first.Entity(0).Float(protocol.EntPosTrBase0)).To(Equal(float32(1000)))
			Expect(first.Entity(4).Float(protocol.EntPosTrBase0)).To(Equal(float32(1100)))

			// The final snapshots have no later snapshot to draw from.
			last := &rec.Snapshots[20]
			Expect(last.Entity(4).Float(protocol.EntPosTrBase0)).To(Equal(float32(2000)))
			Expect(rec.Snapshots[19].Entity(4).Float(protocol.EntPosTrBase0)).To(Equal(float32(2000)))
		})

		DescribeTable("clamps the snapshot count",
			func(n, expected int) { Expect(ClampTimeShiftSnapshots(n)).To(Equal(expected)) },
			Entry("zero", 0, 1),
			Entry("in range", 3, 3),
			Entry("too many", 12, 8),
		)
	})

	Context("in a batch", func() {
		It("isolates a malformed file", func() {
			files := make([]string, 5)
			for i := range files {
				files[i] = filepath.Join(tdir, "batch", string(rune('a'+i))+".dm_68")
				Expect(os.MkdirAll(filepath.Dir(files[i]), 0755)).To(Succeed())

				data := duel()
				if i == 2 {
					c := parsertest.New(protocol.Revision68)
					c.Raw(1, []byte{0, 0, 0, 0, byte(protocol.OpDownload)})
					data = c.Bytes()
				}
				Expect(ioutil.WriteFile(files[i], data, 0644)).To(Succeed())
			}

			for _, threads := range []int{0, 1, 37} {
				outDir := filepath.Join(tdir, "out", string(rune('0'+threads%10)))
				job := CutByTime{
					Sections: []pattern.CutSection{{GameStateIndex: -1, StartTimeMs: 1000, EndTimeMs: 1500}},
					Output:   Output{Folder: outDir},
				}
				r := batch.Runner{Threads: threads, BatchSize: 2}
				res, err := r.Run(context.Background(), files, FileFunc(&job))
				Expect(err).ToNot(HaveOccurred())
				Expect(res.Codes).To(Equal([]errcode.Code{
					errcode.None, errcode.None, errcode.MalformedMessage, errcode.None, errcode.None,
				}))

				outputs, err := filepath.Glob(filepath.Join(outDir, "*"))
				Expect(err).ToNot(HaveOccurred())
				Expect(outputs).To(Equal([]string{
					filepath.Join(outDir, "a_cut_0.dm_68"),
					filepath.Join(outDir, "b_cut_0.dm_68"),
					filepath.Join(outDir, "d_cut_0.dm_68"),
					filepath.Join(outDir, "e_cut_0.dm_68"),
				}))
			}
		})
	})
})
