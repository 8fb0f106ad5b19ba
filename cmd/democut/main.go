// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Command democut cuts, analyzes and time shifts game captures.
package main

import (
	"github.com/danjacques/godemocut/tool/democut"
)

func main() {
	democut.Main()
}
