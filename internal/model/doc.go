// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for sessions, messages, and
// chat requests.
//
// # Key Types
//
//   - Message: one chat message made of ordered parts (text, reasoning, file)
//   - MessagePart: tagged union of text, reasoning, and file attachment
//   - ChatRequest: a single turn dispatched to a backend
//   - Provider: backend family (openrouter, ollama, openai)
//   - Session: conversation header (id, name, last update)
//   - ModelInfo: catalog entry for a selectable model
//
// # Usage
//
// Build a turn and the assistant placeholder that the stream fills in:
//
//	user := model.NewUserMessage(sess.ID, "Hello!")
//	reply := model.NewAssistantMessage(sess.ID)
//	reply.AppendDelta("Hi")
//
// Roles outside system/user/assistant are rewritten to user by
// NormalizeRole, which every boundary decoder applies.
package model
