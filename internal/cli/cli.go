// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/storage"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// IOStreams are the command's standard streams.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// app carries state shared by every command. It is filled in by the root
// command's PersistentPreRunE.
type app struct {
	streams   IOStreams
	configDir string
	logLevel  string

	cfg    *config.Config
	logger *zap.Logger
}

// Execute runs the root command with the process streams and returns the
// exit code.
func Execute() int {
	cmd := NewRootCmd(IOStreams{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr})
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, ErrorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}

// NewRootCmd builds the command tree.
func NewRootCmd(streams IOStreams) *cobra.Command {
	a := &app{streams: streams}

	root := &cobra.Command{
		Use:   "rigchat",
		Short: "Streaming chat over OpenRouter, Ollama and OpenAI-compatible backends",
		Long: `rigchat runs a password-protected streaming chat endpoint in front of
several model backends, and a terminal client that talks to it.

Examples:
  rigchat serve                         # start the endpoint
  rigchat chat                          # new chat session
  rigchat chat --session <id>           # resume a session
  rigchat models                        # list selectable models
  rigchat sessions search "kubernetes"
  rigchat config set client.model gpt-4o`,
		Version:           fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildDate),
		SilenceUsage:      true,
		SilenceErrors:     true,
		CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	lipgloss.SetColorProfile(colorProfile(streams.Out))
	root.SetIn(streams.In)
	root.SetOut(streams.Out)
	root.SetErr(streams.ErrOut)

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "Configuration directory (default ~/.rigchat)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newServeCmd(a),
		newChatCmd(a),
		newModelsCmd(a),
		newSessionsCmd(a),
		newConfigCmd(a),
	)
	return root
}

// init loads configuration and builds the logger.
func (a *app) init() error {
	if a.configDir == "" {
		dir, err := config.ConfigDir()
		if err != nil {
			return fmt.Errorf("failed to resolve config directory: %w", err)
		}
		a.configDir = dir
	}

	cfg, err := config.LoadDir(a.configDir)
	if cfg == nil {
		return err
	}
	if err != nil {
		fmt.Fprintln(a.streams.ErrOut, WarningStyle.Render("Warning:"), err, "(using defaults)")
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg

	logger, err := logging.NewWithWriter(cfg.Log, a.streams.ErrOut)
	if err != nil {
		return err
	}
	a.logger = logger
	return nil
}

// openStore opens the configured message store.
func (a *app) openStore() (*storage.Store, error) {
	store, err := storage.Open(a.cfg.Storage.Path, a.logger.Named("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}
