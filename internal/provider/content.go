// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"fmt"
	"strings"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// OPENAI MESSAGE SHAPE
// =============================================================================

// chatMessage is an OpenAI chat message. Content is either a string or a
// []contentItem when images are attached.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentItem struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// flattenText joins text parts and renders non-image files as reference
// lines. Reasoning parts are not sent back upstream.
func flattenText(m model.Message) string {
	var sb strings.Builder
	for _, p := range m.Parts {
		switch p.Type {
		case model.PartText:
			sb.WriteString(p.Text)
		case model.PartFile:
			if p.IsImage() {
				continue
			}
			if sb.Len() > 0 {
				sb.WriteString("\n")
			}
			fmt.Fprintf(&sb, "[attachment: %s (%s)]", attachmentName(p), p.MediaType)
		}
	}
	return sb.String()
}

func attachmentName(p model.MessagePart) string {
	if p.Filename != "" {
		return p.Filename
	}
	return "file"
}

// toChatMessages converts messages to the OpenAI shape.
func toChatMessages(msgs []model.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		text := flattenText(m)

		var images []contentItem
		for _, p := range m.Files() {
			if p.IsImage() && p.URL != "" {
				images = append(images, contentItem{Type: "image_url", ImageURL: &imageURL{URL: p.URL}})
			}
		}

		if len(images) == 0 {
			out = append(out, chatMessage{Role: string(m.Role), Content: text})
			continue
		}

		items := make([]contentItem, 0, len(images)+1)
		if text != "" {
			items = append(items, contentItem{Type: "text", Text: text})
		}
		items = append(items, images...)
		out = append(out, chatMessage{Role: string(m.Role), Content: items})
	}
	return out
}

// withSystemPrompt prepends a system message when prompt is set.
func withSystemPrompt(prompt string, msgs []model.Message) []model.Message {
	if strings.TrimSpace(prompt) == "" {
		return msgs
	}
	out := make([]model.Message, 0, len(msgs)+1)
	out = append(out, model.Message{Role: model.RoleSystem, Parts: []model.MessagePart{model.TextPart(prompt)}})
	return append(out, msgs...)
}

// =============================================================================
// DATA URLS
// =============================================================================

// splitDataURL returns the media type and base64 payload of a
// "data:<type>;base64,<data>" URL.
func splitDataURL(url string) (mediaType, data string, ok bool) {
	rest, found := strings.CutPrefix(url, "data:")
	if !found {
		return "", "", false
	}
	header, payload, found := strings.Cut(rest, ",")
	if !found || !strings.HasSuffix(header, ";base64") {
		return "", "", false
	}
	return strings.TrimSuffix(header, ";base64"), payload, true
}
