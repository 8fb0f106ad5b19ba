// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package protocol

import (
	"strings"
)

// ColorEscape introduces a color code in a displayed string.
const ColorEscape = '^'

// IsColorCode returns true if s[i:] starts with a color code.
func IsColorCode(s string, i int) bool {
	return i+1 < len(s) && s[i] == ColorEscape && s[i+1] != ColorEscape
}

// StripColors removes all color codes from s.
func StripColors(s string) string {
	if strings.IndexByte(s, ColorEscape) < 0 {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if IsColorCode(s, i) {
			i++
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

// InfoValue returns the value for key in a "\key\value\key\value" info
// string, or an empty string if it is not present.
func InfoValue(info, key string) string {
	if info != "" && info[0] == '\\' {
		info = info[1:]
	}
	for info != "" {
		var k, v string
		k, info = cutInfo(info)
		v, info = cutInfo(info)
		if k == key {
			return v
		}
	}
	return ""
}

func cutInfo(s string) (string, string) {
	if idx := strings.IndexByte(s, '\\'); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

// Tokenize splits a server command into arguments, appending them to dst.
//
// Arguments are separated by whitespace. A double-quoted argument may contain
// whitespace, and a "//" outside of quotes ends the command.
func Tokenize(text string, dst []string) []string {
	i := 0
	for {
		for i < len(text) && text[i] <= ' ' {
			i++
		}
		if i >= len(text) {
			return dst
		}

		if strings.HasPrefix(text[i:], "//") {
			return dst
		}

		if text[i] == '"' {
			i++
			end := strings.IndexByte(text[i:], '"')
			if end < 0 {
				return append(dst, text[i:])
			}
			dst = append(dst, text[i:i+end])
			i += end + 1
			continue
		}

		start := i
		for i < len(text) && text[i] > ' ' && text[i] != '"' {
			i++
		}
		dst = append(dst, text[start:i])
	}
}
