// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType discriminates normalized stream events.
type EventType string

const (
	EventTextDelta EventType = "text-delta"
	EventFinish    EventType = "finish"
	EventError     EventType = "error"
)

// FinishReason is the normalized reason a generation ended.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content-filter"
	FinishToolCalls     FinishReason = "tool-calls"
	FinishUnknown       FinishReason = "unknown"
)

// MapFinishReason converts an upstream finish_reason into a FinishReason.
// Already-normalized names map to themselves.
func MapFinishReason(reason string) FinishReason {
	switch strings.ToLower(reason) {
	case "stop":
		return FinishStop
	case "length":
		return FinishLength
	case "content_filter", "content-filter":
		return FinishContentFilter
	case "tool_calls", "tool-calls", "function_call":
		return FinishToolCalls
	default:
		return FinishUnknown
	}
}

// Event is one normalized item of a chat stream. Exactly one of the
// terminal kinds (finish, error) ends every stream.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventFinish
	FinishReason FinishReason
	Usage        model.Usage

	// EventError
	Err error
}

// TextDelta builds a text-delta event.
func TextDelta(text string) Event {
	return Event{Type: EventTextDelta, TextDelta: text}
}

// Finish builds a finish event.
func Finish(reason FinishReason, usage model.Usage) Event {
	return Event{Type: EventFinish, FinishReason: reason, Usage: usage}
}

// ErrorEvent builds an error event carrying an UpstreamError.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Err: &UpstreamError{Message: message}}
}

// IsTerminal reports whether the event ends the stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventFinish || e.Type == EventError
}

// Message returns the error text for error events.
func (e Event) Message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}
