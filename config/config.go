// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package config loads the cutter's configuration from an optional YAML file
// and the environment.
package config

import (
	"path/filepath"
	"strings"

	"github.com/danjacques/godemocut/analysis"
	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/pattern"
	"github.com/danjacques/godemocut/support/logging"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override
// configuration values. For example, DEMOCUT_MAX_THREAD_COUNT.
const EnvPrefix = "DEMOCUT"

// MaxDurationSec bounds the offsets and the time between frags, in seconds.
const MaxDurationSec = 3600

// Config is the cutter's configuration.
type Config struct {
	// StartOffset and EndOffset pad pattern cuts, in seconds.
	StartOffset int `mapstructure:"start_offset"`
	EndOffset   int `mapstructure:"end_offset"`
	// MergeCutSections coalesces overlapping pattern cuts.
	MergeCutSections bool `mapstructure:"merge_cut_sections"`

	MaxThreadCount  int  `mapstructure:"max_thread_count"`
	BatchSize       int  `mapstructure:"batch_size"`
	RecursiveSearch bool `mapstructure:"recursive_search"`

	// OutputFolder, if not empty, receives all outputs. Otherwise outputs are
	// written alongside their input.
	OutputFolder string `mapstructure:"output_folder"`
	// OutputCompression is the compression applied to written captures.
	OutputCompression string `mapstructure:"output_compression"`

	// CacheDir, if not empty, holds the cut section cache.
	CacheDir string `mapstructure:"cache_dir"`

	ChatRules []ChatRule `mapstructure:"chat_rules"`
	MultiFrag MultiFrag  `mapstructure:"multi_frag"`

	// TimeShiftSnapshots is the number of snapshots time shifting moves other
	// entities by.
	TimeShiftSnapshots int `mapstructure:"time_shift_snapshots"`

	Log logging.Config `mapstructure:"log"`
}

// ChatRule is the configuration of one chat rule.
type ChatRule struct {
	Operator         string `mapstructure:"operator"`
	Pattern          string `mapstructure:"pattern"`
	CaseSensitive    bool   `mapstructure:"case_sensitive"`
	IgnoreColorCodes bool   `mapstructure:"ignore_color_codes"`
	TeamChatOnly     bool   `mapstructure:"team_chat_only"`
}

// MultiFrag configures multi-frag cutting.
type MultiFrag struct {
	MinFragCount int `mapstructure:"min_frag_count"`
	// TimeBetweenFragsSec is the longest interval between two kills of a
	// sequence. Zero selects the default.
	TimeBetweenFragsSec int `mapstructure:"time_between_frags_sec"`
	// PlayerIndex is the client to track, -1 for the demo taker or -2 for the
	// followed player.
	PlayerIndex    int  `mapstructure:"player_index"`
	AllowSelfKills bool `mapstructure:"allow_self_kills"`
	AllowTeamKills bool `mapstructure:"allow_team_kills"`
	AllowDeaths    bool `mapstructure:"allow_deaths"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("start_offset", 10)
	v.SetDefault("end_offset", 10)
	v.SetDefault("merge_cut_sections", true)
	v.SetDefault("max_thread_count", 4)
	v.SetDefault("batch_size", 32)
	v.SetDefault("recursive_search", false)
	v.SetDefault("output_folder", "")
	v.SetDefault("output_compression", "none")
	v.SetDefault("cache_dir", "")
	v.SetDefault("multi_frag.min_frag_count", 2)
	v.SetDefault("multi_frag.time_between_frags_sec", 0)
	v.SetDefault("multi_frag.player_index", analysis.TrackFollowed)
	v.SetDefault("multi_frag.allow_self_kills", false)
	v.SetDefault("multi_frag.allow_team_kills", false)
	v.SetDefault("multi_frag.allow_deaths", false)
	v.SetDefault("time_shift_snapshots", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// New returns a viper instance with defaults and environment bindings, ready
// to have flags bound to it.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadFile reads the configuration file at path into v. The file type is
// taken from its extension.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		v.SetConfigType(ext)
	}
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	return nil
}

// Decode decodes and validates the configuration held by v.
func Decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode configuration")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load loads the configuration from the file at path, if path is not empty,
// and the environment.
func Load(path string) (*Config, error) {
	v := New()
	if path != "" {
		if err := ReadFile(v, path); err != nil {
			return nil, err
		}
	}
	return Decode(v)
}

// Validate rejects configurations that cannot be run.
func (cfg *Config) Validate() error {
	switch {
	case cfg.StartOffset < 0:
		return errors.Errorf("start offset must not be negative (%d)", cfg.StartOffset)
	case cfg.EndOffset < 0:
		return errors.Errorf("end offset must not be negative (%d)", cfg.EndOffset)
	case cfg.MaxThreadCount < 0:
		return errors.Errorf("thread count must not be negative (%d)", cfg.MaxThreadCount)
	case cfg.BatchSize < 0:
		return errors.Errorf("batch size must not be negative (%d)", cfg.BatchSize)
	case cfg.StartOffset > MaxDurationSec || cfg.EndOffset > MaxDurationSec:
		return errors.Errorf("offsets must not exceed %d seconds (%d, %d)", MaxDurationSec, cfg.StartOffset, cfg.EndOffset)
	case cfg.MultiFrag.TimeBetweenFragsSec < 0:
		return errors.Errorf("time between frags must not be negative (%d)", cfg.MultiFrag.TimeBetweenFragsSec)
	case cfg.MultiFrag.TimeBetweenFragsSec > MaxDurationSec:
		return errors.Errorf("time between frags must not exceed %d seconds (%d)", MaxDurationSec, cfg.MultiFrag.TimeBetweenFragsSec)
	case cfg.MultiFrag.PlayerIndex < analysis.TrackFollowed || cfg.MultiFrag.PlayerIndex >= 64:
		return errors.Errorf("invalid tracked player index %d", cfg.MultiFrag.PlayerIndex)
	}

	if _, err := cfg.Compression(); err != nil {
		return err
	}
	for i := range cfg.ChatRules {
		if _, err := cfg.ChatRules[i].Rule(); err != nil {
			return errors.Wrapf(err, "chat rule #%d", i)
		}
	}
	return nil
}

// Compression returns the configured output compression.
func (cfg *Config) Compression() (capture.Compression, error) {
	if cfg.OutputCompression == "" {
		return capture.CompressionNone, nil
	}
	return capture.ParseCompression(cfg.OutputCompression)
}

// Rule converts the configuration into an analysis.ChatRule.
func (cr *ChatRule) Rule() (analysis.ChatRule, error) {
	rule := analysis.ChatRule{
		Pattern:          cr.Pattern,
		CaseSensitive:    cr.CaseSensitive,
		IgnoreColorCodes: cr.IgnoreColorCodes,
		TeamChatOnly:     cr.TeamChatOnly,
	}
	if cr.Operator != "" {
		op, err := analysis.ParseChatOperator(cr.Operator)
		if err != nil {
			return rule, err
		}
		rule.Operator = op
	}
	return rule, rule.Validate()
}

// Rules returns the configured chat rules. It is an error for there to be
// none.
func (cfg *Config) Rules() ([]analysis.ChatRule, error) {
	if len(cfg.ChatRules) == 0 {
		return nil, errors.New("no chat rules are configured")
	}
	rules := make([]analysis.ChatRule, len(cfg.ChatRules))
	for i := range cfg.ChatRules {
		var err error
		if rules[i], err = cfg.ChatRules[i].Rule(); err != nil {
			return nil, errors.Wrapf(err, "chat rule #%d", i)
		}
	}
	return rules, nil
}

// PatternOptions returns the options used to resolve pattern cuts.
func (cfg *Config) PatternOptions() pattern.Options {
	return pattern.Options{
		StartOffsetSec:   cfg.StartOffset,
		EndOffsetSec:     cfg.EndOffset,
		MergeCutSections: cfg.MergeCutSections,
	}
}

// MultiFragOptions returns the multi-frag analyzer options.
func (cfg *Config) MultiFragOptions() analysis.MultiFragOptions {
	mf := &cfg.MultiFrag
	gap := mf.TimeBetweenFragsSec
	if gap > MaxDurationSec {
		gap = MaxDurationSec
	}
	return analysis.MultiFragOptions{
		MinFragCount:   pattern.ClampFragCount(mf.MinFragCount),
		MaxGapMs:       int32(gap) * 1000,
		Player:         int32(mf.PlayerIndex),
		AllowSelfKills: mf.AllowSelfKills,
		AllowTeamKills: mf.AllowTeamKills,
		AllowDeaths:    mf.AllowDeaths,
	}
}
