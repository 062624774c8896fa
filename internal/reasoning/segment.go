// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reasoning splits assistant text into answer and reasoning parts
// using the inline <think>...</think> convention.
package reasoning

import (
	"regexp"
	"strings"

	"github.com/jeranaias/rigchat/internal/model"
)

// Reasoning markers.
const (
	OpenTag  = "<think>"
	CloseTag = "</think>"
)

var thinkPattern = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(OpenTag) + `(.*?)` + regexp.QuoteMeta(CloseTag))

// Segment splits text into text and reasoning parts in order of
// appearance. Each closed <think> span becomes one reasoning part (content
// trimmed, state done). Gaps become text parts and empty gaps are dropped.
// An opening tag with no closing tag is left in the text verbatim.
//
// Segment is pure and is meant to be re-run on the whole accumulated text
// after every delta.
func Segment(text string) []model.MessagePart {
	var parts []model.MessagePart
	last := 0
	for _, m := range thinkPattern.FindAllStringSubmatchIndex(text, -1) {
		if m[0] > last {
			parts = append(parts, model.TextPart(text[last:m[0]]))
		}
		inner := strings.TrimSpace(text[m[2]:m[3]])
		parts = append(parts, model.ReasoningPart(inner, model.StateDone))
		last = m[1]
	}
	if last < len(text) {
		parts = append(parts, model.TextPart(text[last:]))
	}
	return parts
}

// Join rebuilds tagged text from parts so that Segment(Join(p)) == p for
// any p produced by Segment. Non-text, non-reasoning parts are skipped.
func Join(parts []model.MessagePart) string {
	var sb strings.Builder
	for _, p := range parts {
		switch p.Type {
		case model.PartText:
			sb.WriteString(p.Text)
		case model.PartReasoning:
			sb.WriteString(OpenTag)
			sb.WriteString(p.Text)
			sb.WriteString(CloseTag)
		}
	}
	return sb.String()
}

// SegmentMessage expands every text part of a stored message into display
// parts. Other parts keep their position.
func SegmentMessage(parts []model.MessagePart) []model.MessagePart {
	out := make([]model.MessagePart, 0, len(parts))
	for _, p := range parts {
		if p.Type != model.PartText {
			out = append(out, p)
			continue
		}
		out = append(out, Segment(p.Text)...)
	}
	return out
}

// Count returns the number of closed reasoning spans in text.
func Count(text string) int {
	return len(thinkPattern.FindAllStringIndex(text, -1))
}

// Answer returns text with every closed reasoning span removed.
func Answer(text string) string {
	var sb strings.Builder
	for _, p := range Segment(text) {
		if p.Type == model.PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}
