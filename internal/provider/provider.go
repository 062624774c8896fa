// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package provider adapts chat requests to the upstream backend families
// and exposes their responses as normalized event streams.
//
// Each Adapter owns its wire format: OpenRouter and OpenAI-compatible
// servers speak SSE with chat.completion.chunk payloads, Ollama speaks
// NDJSON with its native /api/chat shape. The Registry selects the adapter
// by ChatRequest.Provider after normalizing roles and adding the system
// prompt.
package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

// DefaultSystemPrompt is prepended to every conversation.
const DefaultSystemPrompt = "You are a helpful assistant. Follow the user's instructions carefully. Respond using Markdown."

// Error variables for dispatch failures.
var (
	// ErrNotConfigured indicates the backend is missing required settings.
	ErrNotConfigured = errors.New("provider not configured")

	// ErrNoAdapter indicates no adapter is registered for the provider.
	ErrNoAdapter = errors.New("no adapter for provider")
)

// Adapter streams a chat turn from one backend family.
type Adapter interface {
	// Provider returns the family this adapter serves.
	Provider() model.Provider

	// Stream starts the upstream request. Messages already carry
	// normalized roles and the system prompt. On success the caller owns
	// the returned stream and must Close it.
	Stream(ctx context.Context, req *model.ChatRequest) (stream.Stream, error)
}

// Registry dispatches requests to adapters by provider.
type Registry struct {
	mu           sync.RWMutex
	adapters     map[model.Provider]Adapter
	systemPrompt string
	logger       *zap.Logger
}

// NewRegistry creates an empty registry with the default system prompt.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		adapters:     make(map[model.Provider]Adapter),
		systemPrompt: DefaultSystemPrompt,
		logger:       logger,
	}
}

// WithSystemPrompt overrides the system prompt. An empty prompt disables it.
func (r *Registry) WithSystemPrompt(prompt string) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.systemPrompt = prompt
	return r
}

// Register adds or replaces the adapter for its provider.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Provider()] = a
}

// Adapter returns the adapter for p.
func (r *Registry) Adapter(p model.Provider) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[p]
	return a, ok
}

// Providers lists the registered providers.
func (r *Registry) Providers() []model.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Provider, 0, len(r.adapters))
	for p := range r.adapters {
		out = append(out, p)
	}
	return out
}

// Dispatch validates req, builds the upstream turn, and opens the stream.
// req itself is not modified.
func (r *Registry) Dispatch(ctx context.Context, req *model.ChatRequest) (stream.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	p := req.Provider
	if p == "" {
		p = model.ProviderOpenAI
	}
	a, ok := r.Adapter(p)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, p)
	}

	r.mu.RLock()
	prompt := r.systemPrompt
	r.mu.RUnlock()

	turn := *req
	turn.Provider = p
	turn.Messages = withSystemPrompt(prompt, req.NormalizedMessages())

	r.logger.Debug("DISPATCH",
		zap.String("provider", string(p)),
		zap.String("model", req.Model),
		zap.Int("messages", len(turn.Messages)),
		zap.Bool("search", req.Search))

	s, err := a.Stream(ctx, &turn)
	if err != nil {
		return nil, err
	}
	return s, nil
}
