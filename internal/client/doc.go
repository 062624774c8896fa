// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package client consumes a rigchat endpoint.
//
// Client posts turns to /api/chat and decodes the returned frames into
// normalized events. Conversation owns one session: it stores the user
// message, builds the assistant reply from streamed deltas, and stores the
// reply once the stream finishes.
//
//	c := client.New(cfg.Client, logger)
//	conv := client.NewConversation(c, store, client.Options{Model: "gpt-4o-mini"})
//	reply, err := conv.Send(ctx, "hello")
//	if client.IsUnauthorized(err) {
//		c.SetPassword(prompt())
//		reply, err = conv.Regenerate(ctx)
//	}
package client
