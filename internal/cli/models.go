// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/client"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

func newModelsCmd(a *app) *cobra.Command {
	var (
		endpoint string
		direct   bool
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List selectable models",
		Long: `List the models the endpoint offers. With --direct the backends in the
local config are queried instead of a running endpoint. The built-in list
is shown when neither answers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var models []model.ModelInfo
			if direct {
				models = BuildCatalog(a.cfg, a.logger).Models(cmd.Context())
			} else {
				ccfg := a.cfg.Client
				if endpoint != "" {
					ccfg.Endpoint = endpoint
				}
				var err error
				models, err = client.New(ccfg, a.logger).Models(cmd.Context())
				if err != nil || len(models) == 0 {
					if err != nil {
						fmt.Fprintln(a.streams.ErrOut, WarningStyle.Render("Endpoint unavailable:"), err)
					}
					models = model.DefaultModels()
				}
			}

			if asJSON {
				enc := json.NewEncoder(a.streams.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(models)
			}
			printModels(a, models)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "Endpoint URL (overrides client.endpoint)")
	cmd.Flags().BoolVar(&direct, "direct", false, "Query configured backends instead of the endpoint")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func printModels(a *app, models []model.ModelInfo) {
	idWidth := 10
	for _, m := range models {
		if w := util.Width(m.ID); w > idWidth {
			idWidth = w
		}
	}
	if limit := outputWidth(a.streams.Out) - 30; idWidth > limit {
		idWidth = limit
	}

	out := a.streams.Out
	fmt.Fprintln(out, TitleStyle.Render(util.Column("MODEL", idWidth)+"  "+util.Column("PROVIDER", 12)+"  INPUT"))
	for _, m := range models {
		inputs := make([]string, 0, len(m.Input))
		for _, k := range m.Input {
			inputs = append(inputs, string(k))
		}
		fmt.Fprintf(out, "%s  %s  %s\n",
			util.Column(m.ID, idWidth),
			util.Column(string(m.Provider), 12),
			DimStyle.Render(strings.Join(inputs, ",")))
	}
}
