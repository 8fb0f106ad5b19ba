// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package democut

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/danjacques/godemocut/capture"

	"github.com/pkg/errors"
)

// findFiles expands paths into the capture files they name. A file path is
// used as-is, whatever its name; a directory contributes the capture files in
// it, and in its subdirectories if recursive is true.
//
// The result is sorted and holds each file once.
func findFiles(paths []string, recursive bool) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	add := func(path string) {
		path = filepath.Clean(path)
		if _, ok := seen[path]; !ok {
			seen[path] = struct{}{}
			files = append(files, path)
		}
	}

	for _, root := range paths {
		st, err := os.Stat(root)
		if err != nil {
			return nil, errors.Wrapf(err, "stat %q", root)
		}
		if !st.IsDir() {
			add(root)
			continue
		}

		err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			switch {
			case err != nil:
				return err
			case info.IsDir():
				if path != root && !recursive {
					return filepath.SkipDir
				}
			case info.Mode().IsRegular() && capture.IsCaptureFile(info.Name()):
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "searching %q", root)
		}
	}

	sort.Strings(files)
	return files, nil
}
