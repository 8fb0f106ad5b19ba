// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package pattern turns analyzer events into the time ranges of a capture
// that should be cut.
package pattern

import (
	"sort"

	"github.com/danjacques/godemocut/parser"
)

// Multi-frag grouping limits.
const (
	// DefaultMaxFragGapMs is the longest interval between two kills of the same
	// sequence.
	DefaultMaxFragGapMs = 5000

	// MinFragCount and MaxFragCount bound the configurable number of kills a
	// sequence needs.
	MinFragCount = 2
	MaxFragCount = 8
)

// CutSection is a time range of a GameState to cut.
type CutSection struct {
	GameStateIndex int   `json:"gameStateIndex" yaml:"gameStateIndex"`
	StartTimeMs    int32 `json:"startTimeMs" yaml:"startTimeMs"`
	EndTimeMs      int32 `json:"endTimeMs" yaml:"endTimeMs"`
}

// Candidate is a CutSection before offsets are applied.
type Candidate struct {
	CutSection

	// FixedStart and FixedEnd are true if the respective bound is a natural
	// boundary, such as a pre-match countdown, and must not be padded.
	FixedStart bool
	FixedEnd   bool
}

// Options controls how candidates are resolved.
type Options struct {
	// StartOffsetSec and EndOffsetSec pad each candidate outward.
	StartOffsetSec int
	EndOffsetSec   int

	// MergeCutSections coalesces overlapping and adjacent sections.
	MergeCutSections bool
}

// Frag is a kill attributed to a tracked player.
type Frag struct {
	GameStateIndex int
	ServerTimeMs   int32

	// Streak identifies the run of kills the frag belongs to. Frags of
	// different streaks are never grouped; a death of the tracked player
	// starts a new streak.
	Streak int
}

// ClampFragCount clamps a requested minimum kill count to the supported range.
func ClampFragCount(v int) int {
	switch {
	case v < MinFragCount:
		return MinFragCount
	case v > MaxFragCount:
		return MaxFragCount
	default:
		return v
	}
}

// FindFragSections groups frags into sequences and returns a section for each
// sequence of at least minCount kills.
//
// Successive frags belong to the same sequence if they share a GameState and
// a streak and are at most maxGapMs apart. If maxGapMs is not positive,
// DefaultMaxFragGapMs is used. frags must be in arrival order.
func FindFragSections(frags []Frag, minCount int, maxGapMs int32) []CutSection {
	minCount = ClampFragCount(minCount)
	if maxGapMs <= 0 {
		maxGapMs = DefaultMaxFragGapMs
	}

	var sections []CutSection
	flush := func(group []Frag) {
		if len(group) >= minCount {
			sections = append(sections, CutSection{
				GameStateIndex: group[0].GameStateIndex,
				StartTimeMs:    group[0].ServerTimeMs,
				EndTimeMs:      group[len(group)-1].ServerTimeMs,
			})
		}
	}

	start := 0
	for i := 1; i <= len(frags); i++ {
		if i < len(frags) {
			prev, cur := &frags[i-1], &frags[i]
			if cur.GameStateIndex == prev.GameStateIndex && cur.Streak == prev.Streak &&
				cur.ServerTimeMs >= prev.ServerTimeMs && cur.ServerTimeMs-prev.ServerTimeMs <= maxGapMs {
				continue
			}
		}
		flush(frags[start:i])
		start = i
	}
	return sections
}

// Resolve pads candidates, clamps them to the span of their GameState, and
// optionally merges them. Candidates whose GameState has no snapshots in
// gameStates are dropped. The result is sorted.
func Resolve(candidates []Candidate, opts Options, gameStates []parser.GameStateInfo) []CutSection {
	// Offsets are applied in 64 bits; the clamp to the span brings the result
	// back in range.
	startOffset := int64(opts.StartOffsetSec) * 1000
	endOffset := int64(opts.EndOffsetSec) * 1000

	sections := make([]CutSection, 0, len(candidates))
	for _, c := range candidates {
		span := spanOf(gameStates, c.GameStateIndex)
		if span == nil {
			continue
		}

		start, end := int64(c.StartTimeMs), int64(c.EndTimeMs)
		if !c.FixedStart {
			start -= startOffset
		}
		if !c.FixedEnd {
			end += endOffset
		}

		if first := int64(span.FirstSnapshotTimeMs); start < first {
			start = first
		}
		if last := int64(span.LastSnapshotTimeMs); end > last {
			end = last
		}
		if start > end {
			continue
		}
		sections = append(sections, CutSection{
			GameStateIndex: c.GameStateIndex,
			StartTimeMs:    int32(start),
			EndTimeMs:      int32(end),
		})
	}

	if opts.MergeCutSections {
		return Merge(sections)
	}
	sortSections(sections)
	return sections
}

func spanOf(gameStates []parser.GameStateInfo, index int) *parser.GameStateInfo {
	for i := range gameStates {
		if gs := &gameStates[i]; gs.Index == index && gs.SnapshotCount > 0 {
			return gs
		}
	}
	return nil
}

// Merge coalesces sections of the same GameState that overlap or are
// adjacent. Two sections are adjacent if one starts the millisecond after the
// other ends. The result is sorted; sections is not modified.
func Merge(sections []CutSection) []CutSection {
	if len(sections) == 0 {
		return nil
	}

	sorted := append([]CutSection(nil), sections...)
	sortSections(sorted)

	merged := sorted[:1]
	for _, cs := range sorted[1:] {
		cur := &merged[len(merged)-1]
		if cs.GameStateIndex == cur.GameStateIndex && int64(cs.StartTimeMs) <= int64(cur.EndTimeMs)+1 {
			if cs.EndTimeMs > cur.EndTimeMs {
				cur.EndTimeMs = cs.EndTimeMs
			}
			continue
		}
		merged = append(merged, cs)
	}
	return merged
}

func sortSections(sections []CutSection) {
	sort.Slice(sections, func(i, j int) bool {
		a, b := &sections[i], &sections[j]
		switch {
		case a.GameStateIndex != b.GameStateIndex:
			return a.GameStateIndex < b.GameStateIndex
		case a.StartTimeMs != b.StartTimeMs:
			return a.StartTimeMs < b.StartTimeMs
		default:
			return a.EndTimeMs < b.EndTimeMs
		}
	})
}
