// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/reasoning"
)

// =============================================================================
// LIVE STREAM PRINTER
// =============================================================================

// streamPrinter writes a growing assistant text to a terminal. Only the
// new suffix is written on each update, so the output cannot be restyled
// after the fact. Text inside <think> spans uses ReasoningStyle.
type streamPrinter struct {
	w        io.Writer
	thinking lipgloss.Style

	printed  int
	inThink  bool
	anything bool
}

func newStreamPrinter(w io.Writer) *streamPrinter {
	return &streamPrinter{
		w:        w,
		thinking: ReasoningStyle,
	}
}

// Update writes whatever part of text has not been written yet.
func (p *streamPrinter) Update(text string) {
	pos := p.printed
	for pos < len(text) {
		tag, styled := reasoning.OpenTag, false
		if p.inThink {
			tag, styled = reasoning.CloseTag, true
		}

		// A tag may straddle the previous write.
		from := pos - len(tag) + 1
		if from < 0 {
			from = 0
		}
		i := strings.Index(text[from:], tag)
		if i < 0 {
			p.write(styled, text[pos:])
			pos = len(text)
			break
		}
		end := from + i + len(tag)
		p.write(styled, text[pos:end])
		pos = end
		p.inThink = !p.inThink
	}
	p.printed = pos
}

// write renders line by line so the style never pads across newlines.
func (p *streamPrinter) write(styled bool, s string) {
	if s == "" {
		return
	}
	p.anything = true
	if !styled {
		fmt.Fprint(p.w, s)
		return
	}
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if i > 0 {
			fmt.Fprint(p.w, "\n")
		}
		if line != "" {
			fmt.Fprint(p.w, p.thinking.Render(line))
		}
	}
}

// Done ends the current line.
func (p *streamPrinter) Done() {
	if p.anything {
		fmt.Fprintln(p.w)
	}
}

// =============================================================================
// STORED MESSAGES
// =============================================================================

// RenderMessage renders a stored message with its reasoning separated
// from the answer.
func RenderMessage(msg *model.Message) string {
	var sb strings.Builder
	sb.WriteString(roleHeader(msg.Role))
	sb.WriteString("\n")

	for _, part := range reasoning.SegmentMessage(msg.Parts) {
		switch part.Type {
		case model.PartText:
			if strings.TrimSpace(part.Text) == "" {
				continue
			}
			sb.WriteString(strings.TrimSpace(part.Text))
		case model.PartReasoning:
			sb.WriteString(ReasoningStyle.Render("thinking: " + part.Text))
		case model.PartFile:
			sb.WriteString(DimStyle.Render("[file " + fileLabel(part) + "]"))
		}
		sb.WriteString("\n")
	}

	if md := msg.Metadata; md != nil && md.Usage != nil && md.Usage.TotalTokens > 0 {
		sb.WriteString(DimStyle.Render(fmt.Sprintf("%s · %d tokens", md.Model, md.Usage.TotalTokens)))
		sb.WriteString("\n")
	}
	return sb.String()
}

// RenderAnswer renders a stored message without its reasoning spans. A
// dimmed note counts what was hidden.
func RenderAnswer(msg *model.Message) string {
	var sb strings.Builder
	sb.WriteString(roleHeader(msg.Role))
	sb.WriteString("\n")

	text := msg.Text()
	if answer := strings.TrimSpace(reasoning.Answer(text)); answer != "" {
		sb.WriteString(answer)
		sb.WriteString("\n")
	}
	if n := reasoning.Count(text); n > 0 {
		sb.WriteString(DimStyle.Render(fmt.Sprintf("(%d reasoning span(s) hidden)", n)))
		sb.WriteString("\n")
	}
	for _, f := range msg.Files() {
		sb.WriteString(DimStyle.Render("[file " + fileLabel(f) + "]"))
		sb.WriteString("\n")
	}
	return sb.String()
}

func roleHeader(role model.Role) string {
	switch role {
	case model.RoleUser:
		return UserStyle.Render(role.DisplayName())
	case model.RoleAssistant:
		return AssistantStyle.Render(role.DisplayName())
	default:
		return DimStyle.Render(role.DisplayName())
	}
}

func fileLabel(p model.MessagePart) string {
	if p.Filename != "" {
		return p.Filename
	}
	return p.MediaType
}
