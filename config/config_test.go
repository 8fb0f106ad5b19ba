// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/danjacques/godemocut/analysis"
	"github.com/danjacques/godemocut/capture"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config")
}

var _ = Describe("Load", func() {
	var tdir string

	BeforeEach(func() {
		var err error
		tdir, err = ioutil.TempDir("", "config_test")
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(tdir)).To(Succeed())
	})

	writeConfig := func(content string) string {
		path := filepath.Join(tdir, "democut.yaml")
		Expect(ioutil.WriteFile(path, []byte(content), 0644)).To(Succeed())
		return path
	}

	It("applies defaults without a file", func() {
		cfg, err := Load("")
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.StartOffset).To(Equal(10))
		Expect(cfg.EndOffset).To(Equal(10))
		Expect(cfg.MaxThreadCount).To(Equal(4))
		Expect(cfg.MergeCutSections).To(BeTrue())
		Expect(cfg.MultiFragOptions().MinFragCount).To(Equal(2))
		Expect(cfg.MultiFragOptions().Player).To(Equal(int32(analysis.TrackFollowed)))

		comp, err := cfg.Compression()
		Expect(err).ToNot(HaveOccurred())
		Expect(comp).To(Equal(capture.CompressionNone))
	})

	It("reads a YAML file", func() {
		cfg, err := Load(writeConfig(`
start_offset: 3
max_thread_count: 8
output_compression: zstd
chat_rules:
  - operator: StartsWith
    pattern: gg
    case_sensitive: false
  - pattern: WAXEDDD
    case_sensitive: true
multi_frag:
  min_frag_count: 12
  time_between_frags_sec: 3
  player_index: 4
`))
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.StartOffset).To(Equal(3))
		Expect(cfg.EndOffset).To(Equal(10))
		Expect(cfg.MaxThreadCount).To(Equal(8))

		rules, err := cfg.Rules()
		Expect(err).ToNot(HaveOccurred())
		Expect(rules).To(Equal([]analysis.ChatRule{
			{Operator: analysis.StartsWith, Pattern: "gg"},
			{Operator: analysis.Contains, Pattern: "WAXEDDD", CaseSensitive: true},
		}))

		Expect(cfg.MultiFragOptions()).To(Equal(analysis.MultiFragOptions{
			MinFragCount: 8,
			MaxGapMs:     3000,
			Player:       4,
		}))
		Expect(cfg.PatternOptions().StartOffsetSec).To(Equal(3))
	})

	It("reads overrides from the environment", func() {
		Expect(os.Setenv("DEMOCUT_END_OFFSET", "25")).To(Succeed())
		defer os.Unsetenv("DEMOCUT_END_OFFSET")

		cfg, err := Load("")
		Expect(err).ToNot(HaveOccurred())
		Expect(cfg.EndOffset).To(Equal(25))
	})

	It("rejects invalid configurations", func() {
		for _, content := range []string{
			"start_offset: -1\n",
			"end_offset: 2200000\n",
			"multi_frag:\n  time_between_frags_sec: 3601\n",
			"max_thread_count: -3\n",
			"output_compression: lzma\n",
			"chat_rules:\n  - operator: Regex\n    pattern: x\n",
			"chat_rules:\n  - operator: Contains\n",
			"multi_frag:\n  player_index: 64\n",
		} {
			_, err := Load(writeConfig(content))
			Expect(err).To(HaveOccurred(), "content: %q", content)
		}
	})

	It("bounds the time between frags", func() {
		cfg := Config{MultiFrag: MultiFrag{TimeBetweenFragsSec: 2200000}}
		Expect(cfg.MultiFragOptions().MaxGapMs).To(Equal(int32(MaxDurationSec * 1000)))
	})

	It("requires chat rules for chat cuts", func() {
		cfg, err := Load("")
		Expect(err).ToNot(HaveOccurred())
		_, err = cfg.Rules()
		Expect(err).To(HaveOccurred())
	})

	It("fails on a missing file", func() {
		_, err := Load(filepath.Join(tdir, "missing.yaml"))
		Expect(err).To(HaveOccurred())
	})
})
