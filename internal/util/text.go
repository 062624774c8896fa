// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "github.com/mattn/go-runewidth"

const ellipsis = "..."

// Clip keeps at most n runes of s. Multi-byte characters are never split.
func Clip(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Width is the number of terminal columns s occupies. East Asian wide
// characters take two.
func Width(s string) int {
	return runewidth.StringWidth(s)
}

// Ellipsize shortens s to fit in cols columns, marking the cut with "...".
func Ellipsize(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	return runewidth.Truncate(s, cols, ellipsis)
}

// Column fits s into a table cell exactly cols wide.
func Column(s string, cols int) string {
	return runewidth.FillRight(Ellipsize(s, cols), cols)
}
