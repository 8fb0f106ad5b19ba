// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package fmtutil contains formatting helpers.
package fmtutil

import (
	"bytes"
	"fmt"
)

// ServerTime is a server time, in milliseconds, that renders as
// "[-]MM:SS.mmm".
type ServerTime int32

func (st ServerTime) String() string {
	ms := int64(st)
	sign := ""
	if ms < 0 {
		sign, ms = "-", -ms
	}
	return fmt.Sprintf("%s%02d:%02d.%03d", sign, ms/60000, (ms/1000)%60, ms%1000)
}

// HexSlice is a byte slice that renders as a sequence of hex bytes, instead
// of the default decimal bytes.
//
// Output as: "[4]byte{0x10, 0x20, 0x30, 0x40}"
//
// If the slice is longer than MaxHexBytes, only its head is rendered, followed
// by an ellipsis.
//
// It can be used for easy lazy hex dumping.
type HexSlice []byte

// MaxHexBytes is the maximum number of bytes that HexSlice renders.
const MaxHexBytes = 32

func (hs HexSlice) String() string {
	show := []byte(hs)
	if len(show) > MaxHexBytes {
		show = show[:MaxHexBytes]
	}

	var sb bytes.Buffer
	sb.Grow((6 * len(show)) + 16) // 16 is more than we need for static content.
	fmt.Fprintf(&sb, "[%d]byte{", len(hs))
	for i, b := range show {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "0x%02X", b)
	}
	if len(show) < len(hs) {
		sb.WriteString(", ...")
	}
	sb.WriteString("}")
	return sb.String()
}
