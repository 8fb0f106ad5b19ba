// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package stagingfile writes files atomically.
package stagingfile

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// F is a file that is written under a temporary name alongside its
// destination.
//
// Once finished, F can either be committed or aborted. On commit, it is
// atomically renamed to its destination; on abort, it is deleted. A reader of
// the destination path never observes a partially-written file.
type F struct {
	*os.File

	dest     string
	finished bool
}

// Create creates a staging file for dest. The destination directory is
// created if necessary.
func Create(dest string) (*F, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %q", dir)
	}

	// The staging file lives in the destination directory so the final rename
	// never crosses filesystems.
	fd, err := ioutil.TempFile(dir, "."+filepath.Base(dest)+".staging-")
	if err != nil {
		return nil, errors.Wrap(err, "creating staging file")
	}
	return &F{
		File: fd,
		dest: dest,
	}, nil
}

// Dest returns the file's destination path.
func (f *F) Dest() string { return f.dest }

// Close commits the file. It satisfies io.Closer so that an F can be handed to
// code that only knows how to close its output.
func (f *F) Close() error { return f.Commit() }

// Commit finalizes the file, atomically moving it to its destination.
func (f *F) Commit() error {
	if f.finished {
		return errors.New("staging file already finished")
	}
	f.finished = true

	if err := f.File.Close(); err != nil {
		_ = os.Remove(f.File.Name())
		return errors.Wrap(err, "closing staging file")
	}

	if err := os.Rename(f.File.Name(), f.dest); err != nil {
		_ = os.Remove(f.File.Name())
		return errors.Wrapf(err, "moving staging file into place (%q => %q)", f.File.Name(), f.dest)
	}
	return nil
}

// Abort discards the file. Aborting a finished file does nothing.
func (f *F) Abort() error {
	if f.finished {
		return nil
	}
	f.finished = true

	_ = f.File.Close()
	if err := os.Remove(f.File.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
