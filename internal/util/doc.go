// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds the text and file helpers shared by rigchat packages.
//
// Clip shortens session titles by rune count. Width, Ellipsize and Column
// lay out CLI tables by display width. SaveFile writes config files so a
// crash never leaves a half-written file behind.
package util
