// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads rigchat settings from ~/.rigchat/config.toml.
//
// Precedence, highest first:
//   - environment (OPENAI_API_KEY, OPENROUTER_API_KEY, OLLAMA_URL,
//     APP_PASSWORD, RIGCHAT_ADDR, RIGCHAT_ENDPOINT, RIGCHAT_LOG_LEVEL)
//   - config.toml
//   - Default()
//
// Individual settings are read and written with dotted keys that match the
// file, e.g. cfg.Set("openai.max_tokens", "512").
//
//	cfg, err := config.LoadDir(dir)
//	if cfg == nil {
//		return err // invalid value
//	}
//	if err != nil {
//		log.Printf("using defaults: %v", err) // unparsable file
//	}
package config
