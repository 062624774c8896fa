// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "strings"

// =============================================================================
// MODEL INFO
// =============================================================================

// InputKind is an extra input modality a model accepts.
type InputKind string

const (
	InputImage  InputKind = "image"
	InputSearch InputKind = "search"
)

// TypeTextGeneration is the only model type served.
const TypeTextGeneration = "Text Generation"

// ModelInfo describes a selectable model.
type ModelInfo struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Provider Provider    `json:"provider"`
	Type     string      `json:"type"`
	Input    []InputKind `json:"input,omitempty"`
	Tag      []string    `json:"tag,omitempty"`
}

// Accepts reports whether the model takes the given input kind.
func (m ModelInfo) Accepts(kind InputKind) bool {
	for _, k := range m.Input {
		if k == kind {
			return true
		}
	}
	return false
}

// NewModelInfo builds catalog metadata from a bare model id.
func NewModelInfo(id string, provider Provider) ModelInfo {
	info := ModelInfo{
		ID:       id,
		Name:     id,
		Provider: provider,
		Type:     TypeTextGeneration,
	}
	if IsVisionModel(id) {
		info.Input = append(info.Input, InputImage)
	}
	return info
}

// IsEmbeddingModel reports whether id names an embedding model.
func IsEmbeddingModel(id string) bool {
	return strings.Contains(strings.ToLower(id), "embedding")
}

// IsVisionModel guesses from the id whether a model accepts images.
func IsVisionModel(id string) bool {
	lower := strings.ToLower(id)
	return strings.Contains(lower, "vl") ||
		strings.Contains(lower, "vision") ||
		strings.Contains(lower, "4v")
}

// DefaultModels is served when no upstream listing is available.
func DefaultModels() []ModelInfo {
	image := []InputKind{InputImage}
	return []ModelInfo{
		{ID: "gpt-4o-mini", Name: "GPT-4o-mini", Provider: ProviderOpenAI, Type: TypeTextGeneration, Input: image},
		{ID: "gpt-4o", Name: "GPT-4o", Provider: ProviderOpenAI, Type: TypeTextGeneration, Input: image},
		{ID: "o1-mini", Name: "o1-mini", Provider: ProviderOpenAI, Type: TypeTextGeneration},
		{ID: "o1", Name: "o1", Provider: ProviderOpenAI, Type: TypeTextGeneration},
	}
}
