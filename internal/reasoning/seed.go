// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reasoning

import (
	"strings"

	"github.com/jeranaias/rigchat/internal/stream"
)

// seededStream prefixes the first text delta with OpenTag for models that
// start answering inside a reasoning block without emitting the tag.
type seededStream struct {
	stream.Stream
	seeded bool
}

// Seed wraps s so the first text delta opens a reasoning span. A delta
// that already begins with the tag is passed through unchanged.
func Seed(s stream.Stream) stream.Stream {
	return &seededStream{Stream: s}
}

func (s *seededStream) Recv() (stream.Event, error) {
	ev, err := s.Stream.Recv()
	if err != nil || s.seeded || ev.Type != stream.EventTextDelta {
		return ev, err
	}
	s.seeded = true
	if !strings.HasPrefix(strings.TrimLeft(ev.TextDelta, " \t\r\n"), OpenTag) {
		ev.TextDelta = OpenTag + ev.TextDelta
	}
	return ev, nil
}

// ExpectsReasoning reports whether modelID matches one of the configured
// patterns. Patterns match as case-insensitive substrings.
func ExpectsReasoning(modelID string, patterns []string) bool {
	id := strings.ToLower(modelID)
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && strings.Contains(id, p) {
			return true
		}
	}
	return false
}
