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

// DefaultOpenRouterURL is the base URL for the OpenRouter API.
const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// openRouterRequest is the body sent to /chat/completions.
type openRouterRequest struct {
	Model    string             `json:"model"`
	Messages []chatMessage      `json:"messages"`
	Stream   bool               `json:"stream"`
	Usage    *usageOption       `json:"usage,omitempty"`
	Plugins  []openRouterPlugin `json:"plugins,omitempty"`
	Tools    json.RawMessage    `json:"tools,omitempty"`
}

type usageOption struct {
	Include bool `json:"include"`
}

type openRouterPlugin struct {
	ID string `json:"id"`
}

// OpenRouter is the gateway-routed backend.
type OpenRouter struct {
	apiKey   string
	baseURL  string
	siteURL  string
	siteName string
	client   *http.Client
	logger   *zap.Logger
}

// NewOpenRouter creates an adapter with the default base URL.
func NewOpenRouter(apiKey string) *OpenRouter {
	return &OpenRouter{
		apiKey:  apiKey,
		baseURL: DefaultOpenRouterURL,
		client:  sharedStreamingClient,
		logger:  zap.NewNop(),
	}
}

// WithBaseURL sets a custom base URL.
func (o *OpenRouter) WithBaseURL(url string) *OpenRouter {
	if url != "" {
		o.baseURL = strings.TrimRight(url, "/")
	}
	return o
}

// WithSiteURL sets the HTTP-Referer attribution header.
func (o *OpenRouter) WithSiteURL(url string) *OpenRouter {
	o.siteURL = url
	return o
}

// WithSiteName sets the X-Title attribution header.
func (o *OpenRouter) WithSiteName(name string) *OpenRouter {
	o.siteName = name
	return o
}

// WithHTTPClient replaces the HTTP client.
func (o *OpenRouter) WithHTTPClient(c *http.Client) *OpenRouter {
	if c != nil {
		o.client = c
	}
	return o
}

// WithLogger sets the logger.
func (o *OpenRouter) WithLogger(l *zap.Logger) *OpenRouter {
	if l != nil {
		o.logger = l
	}
	return o
}

// Provider implements Adapter.
func (o *OpenRouter) Provider() model.Provider {
	return model.ProviderOpenRouter
}

// IsConfigured returns true if an API key is set.
func (o *OpenRouter) IsConfigured() bool {
	return o.apiKey != ""
}

// Stream implements Adapter. With search enabled the web plugin is added.
func (o *OpenRouter) Stream(ctx context.Context, req *model.ChatRequest) (stream.Stream, error) {
	if !o.IsConfigured() {
		return nil, ErrNotConfigured
	}

	body := openRouterRequest{
		Model:    req.Model,
		Messages: toChatMessages(req.Messages),
		Stream:   true,
		Usage:    &usageOption{Include: true},
		Tools:    req.Tools,
	}
	if req.Search {
		body.Plugins = []openRouterPlugin{{ID: "web"}}
	}

	headers := map[string]string{
		"Authorization": "Bearer " + o.apiKey,
		"Accept":        "text/event-stream",
		"Cache-Control": "no-cache",
	}
	if o.siteURL != "" {
		headers["HTTP-Referer"] = o.siteURL
	}
	if o.siteName != "" {
		headers["X-Title"] = o.siteName
	}

	o.logger.Debug("OPENROUTER_REQUEST",
		zap.String("model", req.Model),
		zap.String("key", keyFingerprint(o.apiKey)))

	return openStream(ctx, o.client, o.logger, streamRequest{
		url:     o.baseURL + "/chat/completions",
		body:    body,
		headers: headers,
		format:  stream.FormatSSE,
		schema:  stream.SchemaOpenAI,
		opts:    []stream.Option{stream.WithTrailingUsage()},
	})
}
