// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reasoning

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

func text(s string) model.MessagePart { return model.TextPart(s) }
func think(s string) model.MessagePart {
	return model.ReasoningPart(s, model.StateDone)
}

// =============================================================================
// SEGMENT TESTS
// =============================================================================

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []model.MessagePart
	}{
		{"empty", "", nil},
		{"plain", "just text", []model.MessagePart{text("just text")}},
		{"basic", "before<think>inner</think>after", []model.MessagePart{text("before"), think("inner"), text("after")}},
		{"leading span", "<think>\n  plan it  \n</think>\n\nAnswer", []model.MessagePart{think("plan it"), text("\n\nAnswer")}},
		{"adjacent spans", "<think>a</think><think>b</think>", []model.MessagePart{think("a"), think("b")}},
		{"empty span", "x<think>   </think>y", []model.MessagePart{text("x"), think(""), text("y")}},
		{"multiline", "<think>line1\nline2</think>ok", []model.MessagePart{think("line1\nline2"), text("ok")}},
		{"stray close", "a</think>b", []model.MessagePart{text("a</think>b")}},
		{"nested open", "<think>a<think>b</think>c", []model.MessagePart{think("a<think>b"), text("c")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Segment(tc.in))
		})
	}
}

// An opening tag that never closes stays literal text; it is not treated
// as in-progress reasoning.
func TestSegment_UnclosedTagStaysLiteral(t *testing.T) {
	assert.Equal(t, []model.MessagePart{text("<think>still thinking")}, Segment("<think>still thinking"))
	assert.Equal(t,
		[]model.MessagePart{think("done"), text("mid<think>open")},
		Segment("<think>done</think>mid<think>open"))
}

func TestSegment_CountsSpans(t *testing.T) {
	for k := 0; k < 5; k++ {
		var sb strings.Builder
		sb.WriteString("lead ")
		for i := 0; i < k; i++ {
			sb.WriteString("<think>r</think> gap ")
		}
		parts := Segment(sb.String())

		reasoning := 0
		for _, p := range parts {
			if p.Type == model.PartReasoning {
				reasoning++
			}
		}
		assert.Equal(t, k, reasoning)
		assert.Equal(t, k, Count(sb.String()))
		if k == 0 {
			assert.Equal(t, []model.MessagePart{text("lead ")}, parts)
		}
	}
}

func TestSegment_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain",
		"before<think>inner</think>after",
		"<think>  padded  </think>",
		"<think>a</think>x</think><think>b",
		"<think>a<think>b</think>c<think>",
		"x<think></think>y<think>\n</think>",
	}
	for _, in := range inputs {
		first := Segment(in)
		assert.Equal(t, first, Segment(Join(first)), "input %q", in)
	}
}

func TestSegment_GrowingInput(t *testing.T) {
	full := "<think>weigh options</think>The answer is 4."
	var last []model.MessagePart
	for i := 0; i <= len(full); i++ {
		last = Segment(full[:i])
	}
	assert.Equal(t, []model.MessagePart{think("weigh options"), text("The answer is 4.")}, last)
	assert.Equal(t, []model.MessagePart{text("<think>weigh")}, Segment(full[:12]))
}

func TestSegmentMessage(t *testing.T) {
	file := model.FilePart("image/png", "a.png", "data:image/png;base64,AA==")
	got := SegmentMessage([]model.MessagePart{file, text("<think>r</think>t")})

	assert.Equal(t, []model.MessagePart{file, think("r"), text("t")}, got)
}

func TestAnswer(t *testing.T) {
	assert.Equal(t, "ab", Answer("a<think>x</think>b"))
}

// =============================================================================
// SEED TESTS
// =============================================================================

func TestSeed_PrefixesFirstDelta(t *testing.T) {
	s := Seed(stream.FromEvents(
		stream.TextDelta("hmm"),
		stream.TextDelta("</think>Hi"),
		stream.Finish(stream.FinishStop, model.Usage{}),
	))
	res, err := stream.Collect(s)

	require.NoError(t, err)
	assert.Equal(t, "<think>hmm</think>Hi", res.Text)
	assert.Equal(t, []model.MessagePart{think("hmm"), text("Hi")}, Segment(res.Text))
}

func TestSeed_LeavesExistingTag(t *testing.T) {
	s := Seed(stream.FromEvents(stream.TextDelta("\n<think>x</think>y"), stream.Finish(stream.FinishStop, model.Usage{})))
	res, err := stream.Collect(s)

	require.NoError(t, err)
	assert.Equal(t, "\n<think>x</think>y", res.Text)
}

func TestExpectsReasoning(t *testing.T) {
	patterns := []string{"qwq", " deepseek-r1 "}
	assert.True(t, ExpectsReasoning("@cf/qwen/QwQ-32B", patterns))
	assert.True(t, ExpectsReasoning("deepseek-r1:14b", patterns))
	assert.False(t, ExpectsReasoning("llama3.2", patterns))
	assert.False(t, ExpectsReasoning("llama3.2", []string{""}))
}
