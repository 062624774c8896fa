// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/reasoning"
	"github.com/jeranaias/rigchat/internal/stream"
)

// Defaults for the dedicated-inference backend.
const (
	// DefaultOllamaURL uses an explicit IPv4 address to avoid IPv6
	// resolution of localhost.
	DefaultOllamaURL = "http://127.0.0.1:11434"

	// DefaultOllamaMaxTokens caps generated tokens per turn.
	DefaultOllamaMaxTokens = 2048
)

// DefaultReasoningModels lists models that open with reasoning before any
// tag is emitted.
var DefaultReasoningModels = []string{"qwq"}

// =============================================================================
// WIRE TYPES
// =============================================================================

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
	Tools    json.RawMessage `json:"tools,omitempty"`
}

type ollamaTagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// toOllamaMessages flattens parts into Ollama's text-plus-images shape.
// Only base64 data URLs can be forwarded as images.
func toOllamaMessages(msgs []model.Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(msgs))
	for _, m := range msgs {
		om := ollamaMessage{Role: string(m.Role), Content: flattenText(m)}
		for _, p := range m.Files() {
			if !p.IsImage() {
				continue
			}
			if _, data, ok := splitDataURL(p.URL); ok {
				om.Images = append(om.Images, data)
			} else if p.URL != "" {
				om.Content = strings.TrimSpace(om.Content + "\n" + p.URL)
			}
		}
		out = append(out, om)
	}
	return out
}

// =============================================================================
// ADAPTER
// =============================================================================

// Ollama streams from an Ollama server's /api/chat.
type Ollama struct {
	baseURL         string
	maxTokens       int
	reasoningModels []string
	client          *http.Client
	logger          *zap.Logger
}

// NewOllama creates an adapter. An empty baseURL selects the local default.
func NewOllama(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	return &Ollama{
		baseURL:         strings.TrimRight(baseURL, "/"),
		maxTokens:       DefaultOllamaMaxTokens,
		reasoningModels: DefaultReasoningModels,
		client:          sharedStreamingClient,
		logger:          zap.NewNop(),
	}
}

// WithMaxTokens sets options.num_predict. Zero leaves it to the server.
func (o *Ollama) WithMaxTokens(n int) *Ollama {
	o.maxTokens = n
	return o
}

// WithReasoningModels replaces the reasoning model patterns.
func (o *Ollama) WithReasoningModels(patterns []string) *Ollama {
	o.reasoningModels = patterns
	return o
}

// WithHTTPClient replaces the HTTP client.
func (o *Ollama) WithHTTPClient(c *http.Client) *Ollama {
	if c != nil {
		o.client = c
	}
	return o
}

// WithLogger sets the logger.
func (o *Ollama) WithLogger(l *zap.Logger) *Ollama {
	if l != nil {
		o.logger = l
	}
	return o
}

// Provider implements Adapter.
func (o *Ollama) Provider() model.Provider {
	return model.ProviderOllama
}

// Stream implements Adapter.
func (o *Ollama) Stream(ctx context.Context, req *model.ChatRequest) (stream.Stream, error) {
	body := ollamaRequest{
		Model:    req.Model,
		Messages: toOllamaMessages(req.Messages),
		Stream:   true,
		Tools:    req.Tools,
	}
	if o.maxTokens > 0 {
		body.Options = &ollamaOptions{NumPredict: o.maxTokens}
	}

	s, err := openStream(ctx, o.client, o.logger, streamRequest{
		url:     o.baseURL + "/api/chat",
		body:    body,
		headers: map[string]string{"Accept": "application/x-ndjson"},
		format:  stream.FormatNDJSON,
		schema:  stream.SchemaOllama,
	})
	if err != nil {
		return nil, err
	}
	return seedIfExpected(s, req.Model, o.reasoningModels), nil
}

// ListModels returns the names of locally available models.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &stream.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return nil, stream.NewTransportError(resp.StatusCode, body)
	}

	var tags ollamaTagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("failed to decode model list: %w", err)
	}
	names := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// seedIfExpected wraps s with a reasoning pre-seed for matching models.
func seedIfExpected(s stream.Stream, modelID string, patterns []string) stream.Stream {
	if reasoning.ExpectsReasoning(modelID, patterns) {
		return reasoning.Seed(s)
	}
	return s
}
