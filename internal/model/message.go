// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// NormalizeRole maps an arbitrary role string onto the three roles every
// backend accepts. Anything unrecognized ("developer", "tool", ...) becomes user.
func NormalizeRole(role string) Role {
	switch Role(role) {
	case RoleSystem, RoleAssistant, RoleUser:
		return Role(role)
	default:
		return RoleUser
	}
}

// =============================================================================
// MESSAGE PARTS
// =============================================================================

// PartType discriminates the MessagePart union.
type PartType string

const (
	PartText      PartType = "text"
	PartReasoning PartType = "reasoning"
	PartFile      PartType = "file"
)

// ReasoningState tracks whether a reasoning part can still change.
type ReasoningState string

const (
	StateStreaming ReasoningState = "streaming"
	StateDone      ReasoningState = "done"
)

// MessagePart is one ordered piece of a message body.
// Only the fields relevant to Type are populated.
type MessagePart struct {
	Type PartType `json:"type"`

	// text and reasoning
	Text  string         `json:"text,omitempty"`
	State ReasoningState `json:"state,omitempty"`

	// file
	MediaType string `json:"mediaType,omitempty"`
	Filename  string `json:"filename,omitempty"`
	URL       string `json:"url,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) MessagePart {
	return MessagePart{Type: PartText, Text: text}
}

// ReasoningPart builds a reasoning part in the given state.
func ReasoningPart(text string, state ReasoningState) MessagePart {
	return MessagePart{Type: PartReasoning, Text: text, State: state}
}

// FilePart builds a file attachment part.
func FilePart(mediaType, filename, url string) MessagePart {
	return MessagePart{Type: PartFile, MediaType: mediaType, Filename: filename, URL: url}
}

// IsImage reports whether the part is an image attachment.
func (p MessagePart) IsImage() bool {
	return p.Type == PartFile && strings.HasPrefix(p.MediaType, "image/")
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Usage holds token accounting reported by an upstream.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Metadata is optional bookkeeping attached to assistant messages.
type Metadata struct {
	Model        string `json:"model,omitempty"`
	Provider     string `json:"provider,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
	Usage        *Usage `json:"usage,omitempty"`
}

// ErrEmptyParts is returned when persisting a message with no parts.
var ErrEmptyParts = errors.New("message has no parts")

// Message is a single chat message.
type Message struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Parts     []MessagePart `json:"parts"`
	SessionID string        `json:"sessionId,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	Metadata  *Metadata     `json:"metadata,omitempty"`
}

// NewMessage creates a message with a generated ID.
func NewMessage(role Role, sessionID string, parts ...MessagePart) *Message {
	return &Message{
		ID:        uuid.NewString(),
		Role:      role,
		Parts:     parts,
		SessionID: sessionID,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a user message holding a single text part.
func NewUserMessage(sessionID, text string) *Message {
	return NewMessage(RoleUser, sessionID, TextPart(text))
}

// NewAssistantMessage creates the placeholder that a stream fills in:
// exactly one empty text part.
func NewAssistantMessage(sessionID string) *Message {
	return NewMessage(RoleAssistant, sessionID, TextPart(""))
}

// AppendDelta appends streamed text to the trailing text part, creating
// one if the message ends with anything else.
func (m *Message) AppendDelta(delta string) {
	if n := len(m.Parts); n > 0 && m.Parts[n-1].Type == PartText {
		m.Parts[n-1].Text += delta
		return
	}
	m.Parts = append(m.Parts, TextPart(delta))
}

// Text concatenates every text part.
func (m *Message) Text() string {
	var sb strings.Builder
	for _, p := range m.Parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// Files returns the file parts in order.
func (m *Message) Files() []MessagePart {
	var files []MessagePart
	for _, p := range m.Parts {
		if p.Type == PartFile {
			files = append(files, p)
		}
	}
	return files
}

// Validate checks the invariants required before persisting.
func (m *Message) Validate() error {
	if len(m.Parts) == 0 {
		return ErrEmptyParts
	}
	return nil
}

// Clone returns a deep copy safe to hand to another goroutine.
func (m *Message) Clone() *Message {
	c := *m
	c.Parts = append([]MessagePart(nil), m.Parts...)
	if m.Metadata != nil {
		md := *m.Metadata
		if m.Metadata.Usage != nil {
			u := *m.Metadata.Usage
			md.Usage = &u
		}
		c.Metadata = &md
	}
	return &c
}

// UnmarshalJSON accepts both {role, parts} and the flat {role, content}
// shape, normalizing the role on the way in.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var raw struct {
		alias
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Message(raw.alias)
	m.Role = NormalizeRole(raw.Role)
	if len(m.Parts) == 0 && raw.Content != "" {
		m.Parts = []MessagePart{TextPart(raw.Content)}
	}
	return nil
}

// LastN returns at most the n most recent messages, oldest first.
func LastN(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}
