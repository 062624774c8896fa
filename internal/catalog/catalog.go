// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog lists the models a user can pick from.
//
// The OpenAI-compatible /models listing is the primary source. Embedding
// models are filtered out and vision support is inferred from the id. When
// the listing fails or is empty a static default list is served. Local
// Ollama models and configured OpenRouter models are appended when present.
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/model"
)

// DefaultTTL is how long a successful listing is reused.
const DefaultTTL = 5 * time.Minute

// ModelLister lists model ids from one backend.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// OpenAILister lists models through the OpenAI SDK.
type OpenAILister struct {
	client openai.Client
}

// NewOpenAILister creates a lister for the API rooted at baseURL
// (including its version segment, e.g. https://api.openai.com/v1).
func NewOpenAILister(apiKey, baseURL string) *OpenAILister {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(strings.TrimRight(baseURL, "/")+"/"))
	}
	return &OpenAILister{client: openai.NewClient(opts...)}
}

// ListModels implements ModelLister.
func (l *OpenAILister) ListModels(ctx context.Context) ([]string, error) {
	page, err := l.client.Models.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(page.Data))
	for _, m := range page.Data {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// Catalog assembles and caches the model list.
type Catalog struct {
	primary    ModelLister
	local      ModelLister
	openRouter []string
	ttl        time.Duration
	logger     *zap.Logger

	mu       sync.Mutex
	cached   []model.ModelInfo
	cachedAt time.Time
}

// New creates a catalog backed by the OpenAI-compatible lister. primary
// may be nil, in which case the defaults are served.
func New(primary ModelLister, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{primary: primary, ttl: DefaultTTL, logger: logger}
}

// WithLocal adds a lister for dedicated-inference models.
func (c *Catalog) WithLocal(l ModelLister) *Catalog {
	c.local = l
	return c
}

// WithOpenRouterModels adds a fixed list of gateway model ids.
func (c *Catalog) WithOpenRouterModels(ids []string) *Catalog {
	c.openRouter = ids
	return c
}

// WithTTL sets the cache lifetime. Zero disables caching.
func (c *Catalog) WithTTL(ttl time.Duration) *Catalog {
	c.ttl = ttl
	return c
}

// Models returns the current catalog. It never fails; upstream errors fall
// back to the default list. Listings run without holding the lock, so
// concurrent misses each fetch and the last one wins.
func (c *Catalog) Models(ctx context.Context) []model.ModelInfo {
	c.mu.Lock()
	if c.cached != nil && c.ttl > 0 && time.Since(c.cachedAt) < c.ttl {
		cached := c.cached
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	models, fresh := c.primaryModels(ctx)
	models = append(models, c.localModels(ctx)...)
	for _, id := range c.openRouter {
		models = append(models, model.NewModelInfo(id, model.ProviderOpenRouter))
	}

	if fresh {
		c.mu.Lock()
		c.cached = models
		c.cachedAt = time.Now()
		c.mu.Unlock()
	}
	return models
}

// primaryModels returns the filtered upstream list, or the defaults with
// fresh=false when the upstream is unavailable or empty.
func (c *Catalog) primaryModels(ctx context.Context) ([]model.ModelInfo, bool) {
	if c.primary == nil {
		return model.DefaultModels(), false
	}

	ids, err := c.primary.ListModels(ctx)
	if err != nil {
		c.logger.Warn("MODELS_FETCH_FAILED", zap.Error(err))
		return model.DefaultModels(), false
	}

	out := Filter(ids, model.ProviderOpenAI)
	if len(out) == 0 {
		return model.DefaultModels(), false
	}
	return out, true
}

func (c *Catalog) localModels(ctx context.Context) []model.ModelInfo {
	if c.local == nil {
		return nil
	}
	ids, err := c.local.ListModels(ctx)
	if err != nil {
		c.logger.Debug("LOCAL_MODELS_UNAVAILABLE", zap.Error(err))
		return nil
	}
	return Filter(ids, model.ProviderOllama)
}

// Filter drops embedding models and builds catalog entries for the rest.
func Filter(ids []string, provider model.Provider) []model.ModelInfo {
	out := make([]model.ModelInfo, 0, len(ids))
	for _, id := range ids {
		if id == "" || model.IsEmbeddingModel(id) {
			continue
		}
		out = append(out, model.NewModelInfo(id, provider))
	}
	return out
}
