// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package pattern

import (
	"testing"

	"github.com/danjacques/godemocut/parser"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

func TestPattern(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pattern")
}

func cs(gs int, start, end int32) CutSection {
	return CutSection{GameStateIndex: gs, StartTimeMs: start, EndTimeMs: end}
}

var _ = Describe("FindFragSections", func() {
	frags := []Frag{
		{0, 1000, 0},
		{0, 3000, 0},
		{0, 8000, 0}, // Exactly DefaultMaxFragGapMs after the previous kill.
		{0, 20000, 0},
		{0, 21000, 0},
		{1, 22000, 0},
		{1, 23000, 1},
		{1, 24000, 1},
	}

	It("groups kills within the maximum gap", func() {
		Expect(FindFragSections(frags, 2, 0)).To(Equal([]CutSection{
			cs(0, 1000, 8000),
			cs(0, 20000, 21000),
			cs(1, 23000, 24000),
		}))
	})

	It("honors the minimum kill count", func() {
		Expect(FindFragSections(frags, 3, 0)).To(Equal([]CutSection{
			cs(0, 1000, 8000),
		}))
	})

	It("honors a custom gap", func() {
		Expect(FindFragSections(frags, 2, 2000)).To(Equal([]CutSection{
			cs(0, 1000, 3000),
			cs(0, 20000, 21000),
			cs(1, 23000, 24000),
		}))
	})

	It("is idempotent", func() {
		Expect(FindFragSections(frags, 2, 0)).To(Equal(FindFragSections(frags, 2, 0)))
	})

	It("returns nothing for no frags", func() {
		Expect(FindFragSections(nil, 2, 0)).To(BeEmpty())
	})

	DescribeTable("clamps the minimum kill count",
		func(v, expected int) {
			Expect(ClampFragCount(v)).To(Equal(expected))
		},
		Entry("zero", 0, 2),
		Entry("in range", 5, 5),
		Entry("too large", 37, 8),
	)
})

var _ = Describe("Merge", func() {
	It("coalesces overlapping and adjacent sections of a GameState", func() {
		merged := Merge([]CutSection{
			cs(0, 5000, 6000),
			cs(0, 1000, 3000),
			cs(0, 2000, 4000),
			cs(0, 4001, 4500),
			cs(1, 4600, 7000),
			cs(0, 4502, 4800),
		})
		Expect(merged).To(Equal([]CutSection{
			cs(0, 1000, 4500),
			cs(0, 4502, 4800),
			cs(0, 5000, 6000),
			cs(1, 4600, 7000),
		}))

		for i := 1; i < len(merged); i++ {
			if merged[i].GameStateIndex == merged[i-1].GameStateIndex {
				Expect(merged[i].StartTimeMs).To(BeNumerically(">", merged[i-1].EndTimeMs+1))
			}
		}
	})

	It("does not modify its input", func() {
		in := []CutSection{cs(0, 3, 4), cs(0, 1, 2)}
		Merge(in)
		Expect(in).To(Equal([]CutSection{cs(0, 3, 4), cs(0, 1, 2)}))
	})
})

var _ = Describe("Resolve", func() {
	gameStates := []parser.GameStateInfo{
		{Index: 0, FirstSnapshotTimeMs: 0, LastSnapshotTimeMs: 60000, SnapshotCount: 100},
		{Index: 1, FirstSnapshotTimeMs: 1000, LastSnapshotTimeMs: 30000, SnapshotCount: 100},
		{Index: 2, SnapshotCount: 0},
	}
	opts := Options{StartOffsetSec: 10, EndOffsetSec: 5}

	It("pads and clamps candidates to their GameState", func() {
		sections := Resolve([]Candidate{
			{CutSection: cs(0, 20000, 20000)},
			{CutSection: cs(1, 5000, 29000)},
		}, opts, gameStates)
		Expect(sections).To(Equal([]CutSection{
			cs(0, 10000, 25000),
			cs(1, 1000, 30000),
		}))
	})

	It("does not pad fixed bounds", func() {
		sections := Resolve([]Candidate{
			{CutSection: cs(0, 20000, 40000), FixedStart: true},
			{CutSection: cs(0, 45000, 50000), FixedEnd: true},
		}, opts, gameStates)
		Expect(sections).To(Equal([]CutSection{
			cs(0, 20000, 45000),
			cs(0, 35000, 50000),
		}))
	})

	It("clamps offsets too large for a server time", func() {
		huge := Options{StartOffsetSec: 2200000, EndOffsetSec: 2200000}
		Expect(Resolve([]Candidate{{CutSection: cs(1, 5000, 5000)}}, huge, gameStates)).To(Equal([]CutSection{
			cs(1, 1000, 30000),
		}))
	})

	It("drops candidates of unknown or empty GameStates", func() {
		Expect(Resolve([]Candidate{
			{CutSection: cs(2, 0, 10)},
			{CutSection: cs(7, 0, 10)},
		}, opts, gameStates)).To(BeEmpty())
	})

	It("merges when requested", func() {
		mopts := opts
		mopts.MergeCutSections = true
		sections := Resolve([]Candidate{
			{CutSection: cs(0, 20000, 20000)},
			{CutSection: cs(0, 30000, 30000)},
			{CutSection: cs(1, 20000, 20000)},
		}, mopts, gameStates)
		Expect(sections).To(Equal([]CutSection{
			cs(0, 10000, 35000),
			cs(1, 10000, 25000),
		}))
	})

	It("never produces sections outside their GameState", func() {
		var candidates []Candidate
		for t := int32(-5000); t < 70000; t += 2500 {
			candidates = append(candidates, Candidate{CutSection: cs(int(t/2500)%2, t, t+100)})
		}
		for _, s := range Resolve(candidates, opts, gameStates) {
			gs := gameStates[s.GameStateIndex]
			Expect(s.StartTimeMs).To(BeNumerically(">=", gs.FirstSnapshotTimeMs))
			Expect(s.EndTimeMs).To(BeNumerically("<=", gs.LastSnapshotTimeMs))
			Expect(s.StartTimeMs).To(BeNumerically("<=", s.EndTimeMs))
		}
	})
})
