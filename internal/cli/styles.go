// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette (xterm-256 codes).
const (
	colorAccent = lipgloss.Color("39")
	colorUser   = lipgloss.Color("75")
	colorReply  = lipgloss.Color("82")
	colorGood   = lipgloss.Color("42")
	colorBad    = lipgloss.Color("196")
	colorWarn   = lipgloss.Color("214")
	colorMuted  = lipgloss.Color("242")
	colorRule   = lipgloss.Color("240")
	colorLabel  = lipgloss.Color("245")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	SuccessStyle = lipgloss.NewStyle().Bold(true).Foreground(colorGood)
	ErrorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorBad)
	WarningStyle = lipgloss.NewStyle().Foreground(colorWarn)
	DimStyle     = lipgloss.NewStyle().Foreground(colorMuted)

	// UserStyle and AssistantStyle head each turn of a transcript.
	UserStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorUser)
	AssistantStyle = lipgloss.NewStyle().Bold(true).Foreground(colorReply)

	// ReasoningStyle marks text the model produced inside <think> tags.
	ReasoningStyle = lipgloss.NewStyle().Italic(true).Foreground(colorMuted)

	providerStyle = lipgloss.NewStyle().Width(12).Foreground(colorLabel)
	ruleStyle     = lipgloss.NewStyle().Foreground(colorRule)
)

// rule is a horizontal line cols wide.
func rule(cols int) string {
	return ruleStyle.Render(strings.Repeat("─", cols))
}
