// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestLogging(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Logging")
}

var _ = Describe("Logging", func() {
	It("returns Nop for a nil logger", func() {
		Expect(Must(nil)).To(Equal(Nop))
	})

	It("filters by level and formats as JSON", func() {
		var buf bytes.Buffer
		logger, closer, err := New(Config{Level: "warn", Format: "json"}, &buf)
		Expect(err).ToNot(HaveOccurred())
		defer closer.Close()

		var l L = logger.WithField("file", "a.dm_68")
		l.Infof("dropped %d", 1)
		l.Warnf("kept %d", 2)

		Expect(buf.String()).ToNot(ContainSubstring("dropped"))
		Expect(buf.String()).To(ContainSubstring(`"msg":"kept 2"`))
		Expect(buf.String()).To(ContainSubstring(`"file":"a.dm_68"`))
	})

	It("also writes to a log file", func() {
		tdir, err := ioutil.TempDir("", "logging_test")
		Expect(err).ToNot(HaveOccurred())
		defer os.RemoveAll(tdir)

		path := filepath.Join(tdir, "democut.log")
		logger, closer, err := New(Config{File: path}, nil)
		Expect(err).ToNot(HaveOccurred())
		logger.Info("to the file")
		Expect(closer.Close()).To(Succeed())

		data, err := ioutil.ReadFile(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(data)).To(ContainSubstring("to the file"))
	})

	It("rejects invalid settings", func() {
		_, _, err := New(Config{Level: "loud"}, nil)
		Expect(err).To(HaveOccurred())
		_, _, err = New(Config{Format: "xml"}, nil)
		Expect(err).To(HaveOccurred())
	})
})
