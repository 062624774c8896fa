// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/stream"
)

// Defaults for the generic OpenAI-compatible backend.
const (
	DefaultOpenAIURL         = "https://api.openai.com/v1"
	DefaultOpenAITemperature = 0.7
	DefaultOpenAIMaxTokens   = 1024
)

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []chatMessage   `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Tools       json.RawMessage `json:"tools,omitempty"`
}

// OpenAI streams from any server implementing /chat/completions.
type OpenAI struct {
	apiKey          string
	baseURL         string
	temperature     float64
	maxTokens       int
	reasoningModels []string
	client          *http.Client
	logger          *zap.Logger
}

// NewOpenAI creates an adapter. An empty baseURL selects api.openai.com.
func NewOpenAI(apiKey, baseURL string) *OpenAI {
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	return &OpenAI{
		apiKey:      apiKey,
		baseURL:     baseURL,
		temperature: DefaultOpenAITemperature,
		maxTokens:   DefaultOpenAIMaxTokens,
		client:      sharedStreamingClient,
		logger:      zap.NewNop(),
	}
}

// WithTemperature sets the sampling temperature.
func (o *OpenAI) WithTemperature(t float64) *OpenAI {
	o.temperature = t
	return o
}

// WithMaxTokens sets max_tokens. Zero omits the field.
func (o *OpenAI) WithMaxTokens(n int) *OpenAI {
	o.maxTokens = n
	return o
}

// WithReasoningModels lists model patterns whose output starts inside a
// reasoning block.
func (o *OpenAI) WithReasoningModels(patterns []string) *OpenAI {
	o.reasoningModels = patterns
	return o
}

// WithHTTPClient replaces the HTTP client.
func (o *OpenAI) WithHTTPClient(c *http.Client) *OpenAI {
	if c != nil {
		o.client = c
	}
	return o
}

// WithLogger sets the logger.
func (o *OpenAI) WithLogger(l *zap.Logger) *OpenAI {
	if l != nil {
		o.logger = l
	}
	return o
}

// Provider implements Adapter.
func (o *OpenAI) Provider() model.Provider {
	return model.ProviderOpenAI
}

// Stream implements Adapter.
func (o *OpenAI) Stream(ctx context.Context, req *model.ChatRequest) (stream.Stream, error) {
	body := openAIRequest{
		Model:       req.Model,
		Messages:    toChatMessages(req.Messages),
		Stream:      true,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		Tools:       req.Tools,
	}

	headers := map[string]string{"Accept": "text/event-stream"}
	if o.apiKey != "" {
		headers["Authorization"] = "Bearer " + o.apiKey
	}

	s, err := openStream(ctx, o.client, o.logger, streamRequest{
		url:     ChatCompletionsURL(o.baseURL),
		body:    body,
		headers: headers,
		format:  stream.FormatSSE,
		schema:  stream.SchemaOpenAI,
	})
	if err != nil {
		return nil, err
	}
	return seedIfExpected(s, req.Model, o.reasoningModels), nil
}

// APIBaseURL appends /v1 unless base already ends with it.
func APIBaseURL(base string) string {
	base = strings.TrimRight(base, "/")
	if strings.HasSuffix(base, "/v1") {
		return base
	}
	return base + "/v1"
}

// ChatCompletionsURL resolves the streaming endpoint. A base already ending
// in /chat/completions is used verbatim.
func ChatCompletionsURL(base string) string {
	trimmed := strings.TrimRight(base, "/")
	if strings.HasSuffix(trimmed, "/chat/completions") {
		return trimmed
	}
	return APIBaseURL(trimmed) + "/chat/completions"
}
