// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"github.com/tidwall/gjson"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// EVENT NORMALIZER
// =============================================================================

// Schema names the payload shape a backend emits.
type Schema int

const (
	// SchemaOpenAI is the chat.completion.chunk shape used by OpenRouter
	// and every OpenAI-compatible server.
	SchemaOpenAI Schema = iota
	// SchemaOllama is Ollama's native /api/chat line shape.
	SchemaOllama
	// SchemaEndpoint is this service's own client-facing frame shape.
	SchemaEndpoint
)

// String returns the schema name for logs.
func (s Schema) String() string {
	switch s {
	case SchemaOpenAI:
		return "openai"
	case SchemaOllama:
		return "ollama"
	case SchemaEndpoint:
		return "endpoint"
	default:
		return "unknown"
	}
}

// Normalize turns one frame payload into zero or more events. A payload
// that is not valid JSON yields a *FrameParseError and no events; callers
// skip it and keep reading. When a payload carries both text and a finish
// reason the text event comes first.
func Normalize(schema Schema, payload []byte) ([]Event, error) {
	if !gjson.ValidBytes(payload) {
		return nil, &FrameParseError{Payload: string(payload)}
	}
	root := gjson.ParseBytes(payload)

	if msg, ok := errorMessage(root); ok {
		return []Event{ErrorEvent(msg)}, nil
	}

	switch schema {
	case SchemaOllama:
		return normalizeOllama(root), nil
	case SchemaEndpoint:
		return normalizeEndpoint(root), nil
	default:
		return normalizeOpenAI(root), nil
	}
}

// errorMessage extracts an "error" field given as a string or as an
// object with a message.
func errorMessage(root gjson.Result) (string, bool) {
	e := root.Get("error")
	if !e.Exists() || e.Type == gjson.Null {
		return "", false
	}
	if e.IsObject() {
		if m := e.Get("message"); m.Exists() && m.String() != "" {
			return m.String(), true
		}
		return e.Raw, true
	}
	if e.Type == gjson.False {
		return "", false
	}
	return e.String(), true
}

func normalizeOpenAI(root gjson.Result) []Event {
	choices := root.Get("choices").Array()
	if len(choices) == 0 {
		if c := root.Get("content"); c.Type == gjson.String && c.String() != "" {
			return []Event{TextDelta(c.String())}
		}
		return nil
	}

	var events []Event
	first := choices[0]

	text := first.Get("delta.content")
	if text.Type != gjson.String {
		text = first.Get("message.content")
	}
	if s := text.String(); text.Type == gjson.String && s != "" {
		events = append(events, TextDelta(s))
	}

	if fr := first.Get("finish_reason"); fr.Type == gjson.String && fr.String() != "" {
		events = append(events, Finish(MapFinishReason(fr.String()), openAIUsage(root.Get("usage"))))
	}
	return events
}

func openAIUsage(usage gjson.Result) model.Usage {
	return model.Usage{
		PromptTokens:     int(usage.Get("prompt_tokens").Int()),
		CompletionTokens: int(usage.Get("completion_tokens").Int()),
		TotalTokens:      int(usage.Get("total_tokens").Int()),
	}
}

// TrailingUsage extracts the usage object of an OpenAI-shaped chunk sent
// after the finish chunk. ok is false when the payload has no usage.
func TrailingUsage(payload []byte) (usage model.Usage, ok bool) {
	u := gjson.GetBytes(payload, "usage")
	if !u.IsObject() {
		return model.Usage{}, false
	}
	return openAIUsage(u), true
}

func normalizeOllama(root gjson.Result) []Event {
	var events []Event
	if c := root.Get("message.content"); c.Type == gjson.String && c.String() != "" {
		events = append(events, TextDelta(c.String()))
	}
	if root.Get("done").Bool() {
		prompt := int(root.Get("prompt_eval_count").Int())
		completion := int(root.Get("eval_count").Int())
		events = append(events, Finish(MapFinishReason(root.Get("done_reason").String()), model.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}))
	}
	return events
}

func normalizeEndpoint(root gjson.Result) []Event {
	var events []Event
	if c := root.Get("content"); c.Type == gjson.String && c.String() != "" {
		events = append(events, TextDelta(c.String()))
	}
	if root.Get("done").Bool() {
		reason := FinishStop
		if r := root.Get("finishReason"); r.Exists() {
			reason = MapFinishReason(r.String())
		}
		usage := root.Get("usage")
		events = append(events, Finish(reason, model.Usage{
			PromptTokens:     int(usage.Get("promptTokens").Int()),
			CompletionTokens: int(usage.Get("completionTokens").Int()),
			TotalTokens:      int(usage.Get("totalTokens").Int()),
		}))
	}
	return events
}
