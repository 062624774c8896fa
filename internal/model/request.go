// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Provider selects the upstream backend family for a request.
type Provider string

const (
	// ProviderOpenRouter is the gateway-routed backend.
	ProviderOpenRouter Provider = "openrouter"
	// ProviderOllama is the dedicated-inference backend.
	ProviderOllama Provider = "ollama"
	// ProviderOpenAI is any OpenAI-compatible chat completions endpoint.
	ProviderOpenAI Provider = "openai"
)

// providerAliases keeps older client provider names working.
var providerAliases = map[string]Provider{
	"openrouter": ProviderOpenRouter,
	"google":     ProviderOpenRouter,
	"gateway":    ProviderOpenRouter,
	"ollama":     ProviderOllama,
	"workers-ai": ProviderOllama,
	"inference":  ProviderOllama,
	"openai":     ProviderOpenAI,
	"":           ProviderOpenAI,
}

// ErrUnknownProvider is returned by ParseProvider for unrecognized names.
var ErrUnknownProvider = errors.New("unknown provider")

// ParseProvider resolves a provider name, including legacy aliases.
func ParseProvider(name string) (Provider, error) {
	p, ok := providerAliases[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// UnmarshalJSON resolves aliases while decoding.
func (p *Provider) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseProvider(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// DefaultHistoryWindow is the number of trailing messages sent per turn.
const DefaultHistoryWindow = 10

// ChatRequest is one turn's worth of input to a backend. It is built once
// per turn and not mutated after dispatch.
type ChatRequest struct {
	Messages []Message       `json:"messages"`
	Model    string          `json:"model"`
	Provider Provider        `json:"provider"`
	Search   bool            `json:"search,omitempty"`
	Tools    json.RawMessage `json:"tools,omitempty"`
}

// Request validation errors.
var (
	ErrNoMessages = errors.New("messages must not be empty")
	ErrNoModel    = errors.New("model is required")
)

// Validate checks that the request can be dispatched.
func (r *ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	if strings.TrimSpace(r.Model) == "" {
		return ErrNoModel
	}
	return nil
}

// NormalizedMessages returns a copy of the messages with roles coerced to
// system/user/assistant. The receiver is left untouched.
func (r *ChatRequest) NormalizedMessages() []Message {
	out := make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		out[i] = m
		out[i].Role = NormalizeRole(string(m.Role))
	}
	return out
}
