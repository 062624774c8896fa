// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/provider"
	"github.com/jeranaias/rigchat/internal/stream"
)

// Configuration constants for the endpoint client.
const (
	// DefaultRequestTimeout bounds non-streaming calls such as /api/models.
	DefaultRequestTimeout = 15 * time.Second

	// MaxErrorBodySize bounds how much of a failed response is read.
	MaxErrorBodySize = 64 * 1024

	userAgent = "rigchat-cli/0.1.0"
)

// ErrUnauthorized indicates the endpoint rejected the shared password.
// It is the same sentinel the stream package wraps for HTTP 401.
var ErrUnauthorized = stream.ErrUnauthorized

// Client talks to a rigchat endpoint.
type Client struct {
	endpoint string
	logger   *zap.Logger

	streamHTTP *http.Client
	plainHTTP  *http.Client

	mu       sync.RWMutex
	password string
}

// New creates a client from the client config section.
func New(cfg config.ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		password:   cfg.Password,
		logger:     logger,
		streamHTTP: provider.NewStreamingClient(0),
		plainHTTP:  &http.Client{Timeout: DefaultRequestTimeout},
	}
}

// WithHTTPClient replaces both underlying HTTP clients. Used by tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.streamHTTP = h
	c.plainHTTP = h
	return c
}

// SetPassword replaces the shared password, typically after a 401 prompt.
func (c *Client) SetPassword(password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.password = password
}

// Endpoint returns the base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

func (c *Client) authorize(req *http.Request) {
	c.mu.RLock()
	pw := c.password
	c.mu.RUnlock()
	if pw != "" {
		req.Header.Set("Authorization", pw)
	}
}

// ============================================================================
// CHAT
// ============================================================================

// Stream posts req to /api/chat and returns the endpoint's frames as
// normalized events. A 401 is returned as an error wrapping
// ErrUnauthorized before any stream exists. Closing the stream aborts the
// request.
func (c *Client) Stream(ctx context.Context, req *model.ChatRequest) (stream.Stream, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.endpoint+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("User-Agent", userAgent)
	c.authorize(httpReq)

	resp, err := c.streamHTTP.Do(httpReq)
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &stream.TransportError{Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		resp.Body.Close()
		cancel()
		c.logger.Debug("CHAT_REJECTED", zap.Int("status", resp.StatusCode))
		return nil, stream.NewTransportError(resp.StatusCode, body)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		cancel()
		return nil, &stream.TransportError{Status: resp.StatusCode, Err: stream.ErrEmptyBody}
	}

	return stream.New(resp.Body, stream.FormatSSE, stream.SchemaEndpoint,
		stream.WithContext(streamCtx),
		stream.WithCancel(cancel),
		stream.WithLogger(c.logger),
	), nil
}

// ============================================================================
// MODELS AND HEALTH
// ============================================================================

// Models fetches the endpoint's model catalog. Callers fall back to
// model.DefaultModels on error.
func (c *Client) Models(ctx context.Context) ([]model.ModelInfo, error) {
	var models []model.ModelInfo
	if err := c.getJSON(ctx, "/api/models", &models); err != nil {
		return nil, err
	}
	return models, nil
}

// Health is the body of GET /health.
type Health struct {
	Status        string           `json:"status"`
	Version       string           `json:"version"`
	Providers     []model.Provider `json:"providers,omitempty"`
	ActiveStreams int64            `json:"activeStreams"`
	UptimeSeconds int64            `json:"uptimeSeconds"`
}

// Health checks that the endpoint is reachable.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	c.authorize(req)

	resp, err := c.plainHTTP.Do(req)
	if err != nil {
		return &stream.TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		return stream.NewTransportError(resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// IsUnauthorized reports whether err is a rejected credential.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
