// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/config"
)

var secretKeys = map[string]bool{
	"server.password":    true,
	"client.password":    true,
	"openrouter.api_key": true,
	"openai.api_key":     true,
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: `Show or change ~/.rigchat/config.toml. Keys use dot notation, e.g.
server.password or openai.max_tokens. Secrets are shown redacted.`,
		// Config commands must work even when the file does not validate.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.configDir != "" {
				return nil
			}
			dir, err := config.ConfigDir()
			if err != nil {
				return err
			}
			a.configDir = dir
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.LoadDir(a.configDir)
				if cfg == nil {
					return err
				}
				fmt.Fprintln(a.streams.Out, cfg.String())
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the config file path",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(a.streams.Out, filepath.Join(a.configDir, "config.toml"))
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List settable keys",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				keys := config.Keys()
				sort.Strings(keys)
				for _, k := range keys {
					fmt.Fprintln(a.streams.Out, k)
				}
			},
		},
		&cobra.Command{
			Use:   "get <key>",
			Short: "Print one setting",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.LoadDir(a.configDir)
				if cfg == nil {
					return err
				}
				v, err := cfg.Redacted().Get(args[0])
				if err != nil {
					return err
				}
				if list, ok := v.([]string); ok {
					v = strings.Join(list, ",")
				}
				fmt.Fprintln(a.streams.Out, v)
				return nil
			},
		},
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Change one setting in config.toml",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.setConfig(args[0], args[1])
			},
		},
	)
	return cmd
}

// setConfig edits the file itself. Environment overrides are not applied
// so they are never written to disk.
func (a *app) setConfig(key, value string) error {
	path := filepath.Join(a.configDir, "config.toml")
	cfg := config.Default()
	if _, err := os.Stat(path); err == nil {
		if err := config.LoadTOML(cfg, path); err != nil {
			return err
		}
	}

	if err := cfg.Set(key, value); err != nil {
		return err
	}

	check := cfg.Clone()
	if err := check.SetDefaults(a.configDir); err != nil {
		return err
	}
	if err := check.Validate(); err != nil {
		return err
	}

	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	shown := value
	if secretKeys[key] {
		shown = config.RedactedValue
	}
	fmt.Fprintf(a.streams.Out, "%s %s = %s\n", SuccessStyle.Render("Set"), key, shown)
	return nil
}
