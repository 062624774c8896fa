// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigchat command line.
//
// serve runs the chat endpoint over the configured backends. chat is an
// interactive client that streams replies from an endpoint and keeps
// sessions in the local store. models, sessions and config inspect and
// change local state.
package cli
