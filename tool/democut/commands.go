// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package democut

import (
	"strconv"
	"strings"

	"github.com/danjacques/godemocut/pattern"
	"github.com/danjacques/godemocut/replay"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func (a *app) cutTimeCommand() *cobra.Command {
	var gameState int
	cmd := &cobra.Command{
		Use:   "cut-time FILE START END [START END]...",
		Short: "Cut time ranges out of a single capture",
		Long: `Cut one or more server time ranges out of a single capture. Times are in
seconds, either plain ("75.5") or as minutes and seconds ("1:15.5").`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 3 || len(args)%2 != 1 {
				return errors.New("expected a file followed by START END pairs")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			sections, err := parseRanges(args[1:], gameState)
			if err != nil {
				return err
			}
			return a.run(&replay.CutByTime{Sections: sections, Output: a.output()}, args[:1])
		},
	}
	cmd.Flags().IntVar(&gameState, "gamestate", -1, "Only cut inside this GameState (-1 for any).")
	return cmd
}

func (a *app) cutChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cut-chat PATH...",
		Short: "Cut around chat lines matching the configured rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := a.cfg.Rules()
			if err != nil {
				return err
			}
			return a.runPattern(&replay.ChatPattern{Rules: rules}, args)
		},
	}
}

func (a *app) cutFragCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cut-frag PATH...",
		Short: "Cut sequences of kills by a single player",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPattern(&replay.MultiFragPattern{Options: a.cfg.MultiFragOptions()}, args)
		},
	}
	f := cmd.Flags()
	f.Int("min-frags", 0, "Number of kills a sequence needs (2-8).")
	f.Int("player", 0, "Client to track: a client number, -1 for the demo taker, -2 for the followed player.")
	a.bindFlags(f, map[string]string{
		"multi_frag.min_frag_count": "min-frags",
		"multi_frag.player_index":   "player",
	})
	return cmd
}

func (a *app) cutMatchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cut-match PATH...",
		Short: "Cut each match, from its countdown through its intermission",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runPattern(replay.MatchPattern{}, args)
		},
	}
}

func (a *app) runPattern(p replay.Pattern, paths []string) error {
	store, err := a.openCache()
	if err != nil {
		return err
	}
	return a.run(&replay.CutByPattern{
		Pattern: p,
		Options: a.cfg.PatternOptions(),
		Output:  a.output(),
		Cache:   store,
	}, paths)
}

func (a *app) analyzeCommand() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "analyze PATH...",
		Short: "Write a report of the kills, chat lines and matches of captures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rf, err := replay.ParseReportFormat(format)
			if err != nil {
				return err
			}
			job := replay.Analyze{
				Format:    rf,
				MultiFrag: a.cfg.MultiFragOptions(),
				Output:    a.output(),
			}
			// Chat lines are only reported if rules are configured.
			if len(a.cfg.ChatRules) > 0 {
				if job.ChatRules, err = a.cfg.Rules(); err != nil {
					return err
				}
			}
			return a.run(&job, args)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Report format: yaml or pb.")
	return cmd
}

func (a *app) timeShiftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeshift PATH...",
		Short: "Shift other players forward in time to compensate network delay",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(&replay.TimeShift{
				Snapshots: a.cfg.TimeShiftSnapshots,
				Output:    a.output(),
			}, args)
		},
	}
	cmd.Flags().Int("snapshots", 0, "Number of snapshots to shift by (1-8).")
	a.bindFlags(cmd.Flags(), map[string]string{"time_shift_snapshots": "snapshots"})
	return cmd
}

// bindFlags binds configuration keys to flags of fs. An unset flag never
// overrides the configuration.
func (a *app) bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := a.v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// parseRanges parses START END pairs into cut sections.
func parseRanges(args []string, gameState int) ([]pattern.CutSection, error) {
	sections := make([]pattern.CutSection, 0, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		start, err := parseSeconds(args[i])
		if err != nil {
			return nil, err
		}
		end, err := parseSeconds(args[i+1])
		if err != nil {
			return nil, err
		}
		if start > end {
			return nil, errors.Errorf("range start %q is after its end %q", args[i], args[i+1])
		}
		sections = append(sections, pattern.CutSection{
			GameStateIndex: gameState,
			StartTimeMs:    start,
			EndTimeMs:      end,
		})
	}
	return sections, nil
}

// parseSeconds parses "SS[.fff]" or "MM:SS[.fff]" into milliseconds.
func parseSeconds(v string) (int32, error) {
	var minutes int64
	secs := v
	if idx := strings.IndexByte(v, ':'); idx >= 0 {
		var err error
		if minutes, err = strconv.ParseInt(v[:idx], 10, 32); err != nil || minutes < 0 {
			return 0, errors.Errorf("invalid time %q", v)
		}
		secs = v[idx+1:]
	}
	s, err := strconv.ParseFloat(secs, 64)
	if err != nil || s < 0 {
		return 0, errors.Errorf("invalid time %q", v)
	}
	return int32(minutes*60000) + int32(s*1000+0.5), nil
}
