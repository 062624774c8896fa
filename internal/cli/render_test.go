// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeranaias/rigchat/internal/model"
)

func TestStreamPrinter_WritesOnlySuffix(t *testing.T) {
	var buf bytes.Buffer
	p := newStreamPrinter(&buf)

	full := "before<think>plan\nsteps</think>after"
	for i := 1; i <= len(full); i++ {
		p.Update(full[:i])
	}
	p.Done()

	assert.Equal(t, full+"\n", buf.String())
}

func TestStreamPrinter_TracksReasoningAcrossSplitTags(t *testing.T) {
	var buf bytes.Buffer
	p := newStreamPrinter(&buf)

	p.Update("a<thi")
	assert.False(t, p.inThink)
	p.Update("a<think>x</th")
	assert.True(t, p.inThink)
	p.Update("a<think>x</think>b")
	assert.False(t, p.inThink)
	assert.Equal(t, "a<think>x</think>b", buf.String())
}

func TestStreamPrinter_NothingWritten(t *testing.T) {
	var buf bytes.Buffer
	p := newStreamPrinter(&buf)
	p.Update("")
	p.Done()
	assert.Empty(t, buf.String())
}

func TestRenderMessage(t *testing.T) {
	msg := model.NewAssistantMessage("s")
	msg.AppendDelta("before<think> inner </think>after")
	msg.Metadata = &model.Metadata{Model: "qwq", Usage: &model.Usage{TotalTokens: 12}}

	out := RenderMessage(msg)

	assert.True(t, strings.HasPrefix(out, "Assistant\n"))
	assert.Contains(t, out, "before\n")
	assert.Contains(t, out, "thinking: inner\n")
	assert.Contains(t, out, "after\n")
	assert.Contains(t, out, "qwq · 12 tokens")
	assert.Less(t, strings.Index(out, "before"), strings.Index(out, "thinking"))
}

func TestRenderMessage_UnclosedTagStaysText(t *testing.T) {
	msg := model.NewUserMessage("s", "what does <think> do")
	msg.Parts = append(msg.Parts, model.FilePart("image/png", "shot.png", "data:image/png;base64,AA=="))

	out := RenderMessage(msg)

	assert.Contains(t, out, "You\n")
	assert.Contains(t, out, "what does <think> do")
	assert.NotContains(t, out, "thinking:")
	assert.Contains(t, out, "[file shot.png]")
}

func TestRenderAnswer(t *testing.T) {
	msg := model.NewAssistantMessage("s")
	msg.AppendDelta("<think>plan</think>Use kubectl.<think>check</think>")

	out := RenderAnswer(msg)

	assert.True(t, strings.HasPrefix(out, "Assistant\n"))
	assert.Contains(t, out, "Use kubectl.\n")
	assert.NotContains(t, out, "plan")
	assert.Contains(t, out, "(2 reasoning span(s) hidden)")
}
