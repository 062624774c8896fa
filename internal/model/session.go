// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigchat/internal/util"
)

// SessionNameLength caps the title derived from the first user message.
const SessionNameLength = 20

// Session groups the messages of one conversation.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession creates a session titled from the opening user text.
func NewSession(firstText string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Name:      SessionName(firstText),
		UpdatedAt: time.Now(),
	}
}

// SessionName derives a short title from free text.
func SessionName(text string) string {
	name := strings.Join(strings.Fields(text), " ")
	if name == "" {
		return "New chat"
	}
	return util.Clip(name, SessionNameLength)
}

// Touch bumps UpdatedAt.
func (s *Session) Touch() {
	s.UpdatedAt = time.Now()
}

// TrimForRegenerate drops every assistant message after the last user
// message and returns the remaining history. ok is false when there is no
// user message to regenerate from.
func TrimForRegenerate(msgs []Message) (kept []Message, dropped []Message, ok bool) {
	last := -1
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			last = i
			break
		}
	}
	if last < 0 {
		return msgs, nil, false
	}
	for _, m := range msgs[last+1:] {
		if m.Role == RoleAssistant {
			dropped = append(dropped, m)
		}
	}
	return msgs[:last+1], dropped, true
}
