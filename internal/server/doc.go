// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the HTTP chat transport endpoint.
//
// # Endpoints
//
//   - POST /api/chat   - stream one chat turn as server-sent events
//   - GET  /api/models - list selectable models (no credential required)
//   - GET  /health     - health check (no credential required)
//
// A chat response is a sequence of frames:
//
//	data: {"content":"Hel"}
//	data: {"content":"lo"}
//	data: {"done":true,"finishReason":"stop","usage":{...}}
//
// A failure after streaming began ends the response with
// data: {"error":"..."} instead of the done frame.
//
// # Security Features
//
//   - Shared-password authentication with constant-time comparison
//   - Per-client token-bucket rate limiting
//   - Forwarding headers honored only from trusted proxies
//   - Security headers and panic recovery
//
// # Usage
//
//	srv := server.New(cfg.Server, registry, logger).WithCatalog(cat)
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
