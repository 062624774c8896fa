// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/catalog"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/provider"
	"github.com/jeranaias/rigchat/internal/server"
)

// shutdownTimeout bounds how long open streams get to finish on exit.
const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat endpoint",
		Long: `Run the streaming chat endpoint.

Backends are registered from the [openrouter], [ollama] and [openai]
config sections. Set server.password (or APP_PASSWORD) to require a
shared password on /api/chat.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			return a.runServe(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}

// BuildRegistry registers an adapter for every configured backend.
// Ollama needs no credential and is always registered. The OpenAI-compatible
// backend is registered once it has a key or a non-default base_url.
func BuildRegistry(cfg *config.Config, logger *zap.Logger) *provider.Registry {
	registry := provider.NewRegistry(logger.Named("provider"))
	if cfg.Server.SystemPrompt != "" {
		registry.WithSystemPrompt(cfg.Server.SystemPrompt)
	}

	if cfg.OpenRouter.APIKey != "" {
		registry.Register(provider.NewOpenRouter(cfg.OpenRouter.APIKey).
			WithBaseURL(cfg.OpenRouter.BaseURL).
			WithSiteURL(cfg.OpenRouter.SiteURL).
			WithSiteName(cfg.OpenRouter.SiteName).
			WithLogger(logger.Named("openrouter")))
	}

	registry.Register(provider.NewOllama(cfg.Ollama.BaseURL).
		WithMaxTokens(cfg.Ollama.MaxTokens).
		WithReasoningModels(cfg.Ollama.ReasoningModels).
		WithLogger(logger.Named("ollama")))

	if cfg.OpenAI.Enabled() {
		registry.Register(provider.NewOpenAI(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL).
			WithTemperature(cfg.OpenAI.Temperature).
			WithMaxTokens(cfg.OpenAI.MaxTokens).
			WithReasoningModels(cfg.OpenAI.ReasoningModels).
			WithLogger(logger.Named("openai")))
	}
	return registry
}

// BuildCatalog lists OpenAI models with local Ollama models and the
// configured OpenRouter ids merged in.
func BuildCatalog(cfg *config.Config, logger *zap.Logger) *catalog.Catalog {
	var primary catalog.ModelLister
	if cfg.OpenAI.Enabled() {
		primary = catalog.NewOpenAILister(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	}
	cat := catalog.New(primary, logger.Named("catalog")).
		WithOpenRouterModels(cfg.OpenRouter.Models)
	if cfg.Ollama.ListModels {
		cat.WithLocal(provider.NewOllama(cfg.Ollama.BaseURL))
	}
	return cat
}

func (a *app) runServe(ctx context.Context) error {
	registry := BuildRegistry(a.cfg, a.logger)
	srv := server.New(a.cfg.Server, registry, a.logger.Named("server")).
		WithCatalog(BuildCatalog(a.cfg, a.logger)).
		WithProviders(registry.Providers())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Fprintf(a.streams.Out, "%s %s\n", SuccessStyle.Render("Listening on"), "http://"+srv.Addr())
	if a.cfg.Server.Password == "" {
		fmt.Fprintln(a.streams.Out, WarningStyle.Render("No server.password set: /api/chat is open to anyone who can reach it."))
	}

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return <-errCh
}
