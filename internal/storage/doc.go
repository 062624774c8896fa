// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists chat sessions and messages in SQLite.
//
// # Key Types
//
//   - Store: SQLite-backed session and message store
//   - SessionSummary: lightweight session metadata for listing
//
// # Usage
//
//	store, err := storage.Open(path)
//	defer store.Close()
//
//	err = store.CreateSession(ctx, sess)
//	err = store.AddMessage(ctx, msg)
//	msgs, err := store.ListMessages(ctx, sess.ID, storage.DefaultMessageLimit)
//
// # Storage Location
//
// The database lives at ~/.rigchat/rigchat.db unless configured otherwise.
// Message parts and metadata are stored as JSON columns.
package storage
