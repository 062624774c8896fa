// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/stream"
)

const (
	// MaxErrorBodySize bounds how much of a failed response is read.
	MaxErrorBodySize = 64 * 1024

	// DefaultResponseHeaderTimeout bounds connection setup only. Streams
	// themselves have no deadline; they end via context cancellation.
	DefaultResponseHeaderTimeout = 60 * time.Second

	userAgent = "rigchat/0.1.0"
)

// NewStreamingClient returns an HTTP client suited to long-lived streams.
// PERFORMANCE: Connection pooling reduces TCP handshake overhead.
func NewStreamingClient(headerTimeout time.Duration) *http.Client {
	if headerTimeout <= 0 {
		headerTimeout = DefaultResponseHeaderTimeout
	}
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
		},
		// No client timeout for streaming; controlled via context.
	}
}

var sharedStreamingClient = NewStreamingClient(DefaultResponseHeaderTimeout)

// streamRequest describes one upstream streaming call.
type streamRequest struct {
	url     string
	body    any
	headers map[string]string
	format  stream.Format
	schema  stream.Schema
	opts    []stream.Option
}

// openStream posts the request and wraps a 2xx body as a Stream. Non-2xx
// and bodyless responses become *stream.TransportError. The request context
// is cancelled and the body closed whenever the returned stream is closed.
func openStream(ctx context.Context, client *http.Client, logger *zap.Logger, sr streamRequest) (stream.Stream, error) {
	payload, err := json.Marshal(sr.body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, sr.url, bytes.NewReader(payload))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range sr.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &stream.TransportError{Err: err}
	}

	logger.Debug("UPSTREAM_RESPONSE",
		zap.String("url", req.URL.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Duration("ttfb", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))
		resp.Body.Close()
		cancel()
		return nil, stream.NewTransportError(resp.StatusCode, body)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		cancel()
		return nil, &stream.TransportError{Status: resp.StatusCode, Err: stream.ErrEmptyBody}
	}

	opts := append([]stream.Option{
		stream.WithContext(streamCtx),
		stream.WithCancel(cancel),
		stream.WithLogger(logger),
	}, sr.opts...)
	return stream.New(resp.Body, sr.format, sr.schema, opts...), nil
}

// keyFingerprint returns a short non-reversible identifier for a secret,
// safe to log.
func keyFingerprint(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:4])
}
