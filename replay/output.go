// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package replay

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/danjacques/godemocut/capture"
	"github.com/danjacques/godemocut/errcode"
	"github.com/danjacques/godemocut/parser"
	"github.com/danjacques/godemocut/support/stagingfile"
)

// Output describes where and how jobs write their files.
type Output struct {
	// Folder, if not empty, receives every output. Otherwise, outputs are
	// written alongside their input.
	Folder string

	// Compression is applied to written captures.
	Compression capture.Compression
	// Level is the gzip compression level. Zero selects the default.
	Level int
}

// Path returns the path of the output derived from input and tagged with tag.
// ext replaces the input's extension; if it is empty, the input's capture
// extension and the output compression suffix are used.
//
// For example, "/demos/duel.dm_68.gz" tagged "cut_2" is written to
// "/demos/duel_cut_2.dm_68" without compression.
func (o *Output) Path(input, tag, ext string) string {
	_, name := capture.SplitCompression(filepath.Base(input))
	inputExt := filepath.Ext(name)
	base := strings.TrimSuffix(name, inputExt)
	if ext == "" {
		ext = inputExt + o.Compression.Suffix()
	}

	dir := o.Folder
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s%s", base, tag, ext))
}

// CutPath returns the path of the index'th cut of input.
func (o *Output) CutPath(input string, index int) string {
	return o.Path(input, fmt.Sprintf("cut_%d", index), "")
}

// stagedCapture is a capture output. Closing it commits the file; aborting it
// discards it.
type stagedCapture struct {
	io.WriteCloser
	sf *stagingfile.F
}

var _ parser.Aborter = (*stagedCapture)(nil)

// Abort implements parser.Aborter.
func (sc *stagedCapture) Abort() error {
	err := sc.sf.Abort()
	// The staging file is already finished, so this only releases the
	// compressor.
	_ = sc.WriteCloser.Close()
	return err
}

// createCapture creates a staged capture file at path.
func (o *Output) createCapture(path string) (*stagedCapture, error) {
	sf, err := stagingfile.Create(path)
	if err != nil {
		return nil, errcode.Wrap(err, errcode.WriteFailed)
	}
	level := o.Level
	if level == 0 {
		level = -1
	}
	w, err := capture.NewCompressedWriter(sf, o.Compression, level)
	if err != nil {
		_ = sf.Abort()
		return nil, errcode.Wrap(err, errcode.WriteFailed)
	}
	return &stagedCapture{WriteCloser: w, sf: sf}, nil
}
