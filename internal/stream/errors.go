// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Error variables shared by every backend.
var (
	// ErrUnauthorized indicates the credential was rejected (HTTP 401).
	ErrUnauthorized = errors.New("unauthorized")

	// ErrEmptyBody indicates a 2xx response arrived without a body.
	ErrEmptyBody = errors.New("response body is empty")

	// ErrFrameTooLarge indicates a single line exceeded MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

// TransportError is a failed upstream request: a connection failure
// (Status 0), a non-2xx response, or a 2xx without a body. It is fatal for
// the turn and never retried.
type TransportError struct {
	Status int
	Body   string
	Err    error
}

// NewTransportError classifies an HTTP status and body. A JSON error
// envelope is reduced to its message.
func NewTransportError(status int, body []byte) *TransportError {
	te := &TransportError{Status: status, Body: errorBody(body)}
	if status == http.StatusUnauthorized {
		te.Err = ErrUnauthorized
	}
	return te
}

// errorBody extracts {"error":{"message":...}} or {"error":"..."} when
// present and otherwise returns the trimmed body.
func errorBody(body []byte) string {
	if gjson.ValidBytes(body) {
		root := gjson.ParseBytes(body)
		if msg, ok := errorMessage(root); ok {
			return msg
		}
		if m := root.Get("message"); m.Type == gjson.String {
			return m.String()
		}
	}
	return strings.TrimSpace(string(body))
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream request failed: %v", e.Err)
	}
	switch {
	case e.Err != nil && e.Body != "":
		return fmt.Sprintf("upstream error (HTTP %d): %v: %s", e.Status, e.Err, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("upstream error (HTTP %d): %v", e.Status, e.Err)
	case e.Body != "":
		return fmt.Sprintf("upstream error (HTTP %d): %s", e.Status, e.Body)
	default:
		return fmt.Sprintf("upstream error (HTTP %d)", e.Status)
	}
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamError is an explicit error frame received mid-stream.
type UpstreamError struct {
	Message string
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return e.Message
}

// FrameParseError is a payload that could not be decoded. Streams skip
// these and keep reading.
type FrameParseError struct {
	Payload string
}

// Error implements the error interface.
func (e *FrameParseError) Error() string {
	p := e.Payload
	if len(p) > 64 {
		p = p[:64] + "..."
	}
	return fmt.Sprintf("malformed frame: %q", p)
}

// IsAuth reports whether err is an authentication failure.
func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
