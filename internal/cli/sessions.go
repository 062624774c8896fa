// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/util"
)

func newSessionsCmd(a *app) *cobra.Command {
	var asJSON bool
	list := func(cmd *cobra.Command, args []string) error {
		store, err := a.openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		var sessions []storage.SessionSummary
		if len(args) > 0 {
			sessions, err = store.SearchSessions(cmd.Context(), strings.Join(args, " "))
		} else {
			sessions, err = store.ListSessions(cmd.Context())
		}
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(a.streams.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(sessions)
		}
		printSessions(a, sessions)
		return nil
	}

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage chat sessions",
		Long: `List, search, show, rename and delete stored chat sessions.

Examples:
  rigchat sessions                    # list sessions
  rigchat sessions search kubernetes
  rigchat sessions show <id>
  rigchat sessions delete <id>`,
		Args: cobra.NoArgs,
		RunE: list,
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Output JSON")

	var noReasoning bool
	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a session's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := store.GetSession(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("session %s: %w", args[0], err)
			}
			msgs, err := store.ListMessages(cmd.Context(), sess.ID, 0)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(a.streams.Out)
				enc.SetIndent("", "  ")
				return enc.Encode(msgs)
			}
			fmt.Fprintln(a.streams.Out, TitleStyle.Render(sess.Name))
			fmt.Fprintln(a.streams.Out, rule(min(outputWidth(a.streams.Out), 70)))
			for i := range msgs {
				if noReasoning {
					fmt.Fprintln(a.streams.Out, RenderAnswer(&msgs[i]))
					continue
				}
				fmt.Fprintln(a.streams.Out, RenderMessage(&msgs[i]))
			}
			return nil
		},
	}
	showCmd.Flags().BoolVar(&noReasoning, "no-reasoning", false, "Hide reasoning spans")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List sessions",
			Args:  cobra.NoArgs,
			RunE:  list,
		},
		&cobra.Command{
			Use:   "search <query>",
			Short: "Search session names and message text",
			Args:  cobra.MinimumNArgs(1),
			RunE:  list,
		},
		showCmd,
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Rename a session",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				if err := store.RenameSession(cmd.Context(), args[0], strings.Join(args[1:], " ")); err != nil {
					return fmt.Errorf("session %s: %w", args[0], err)
				}
				fmt.Fprintln(a.streams.Out, SuccessStyle.Render("Renamed "+args[0]))
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>...",
			Short: "Delete sessions and their messages",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				for _, id := range args {
					if err := store.DeleteSession(cmd.Context(), id); err != nil {
						return fmt.Errorf("session %s: %w", id, err)
					}
					fmt.Fprintln(a.streams.Out, SuccessStyle.Render("Deleted "+id))
				}
				return nil
			},
		},
	)
	return cmd
}

func printSessions(a *app, sessions []storage.SessionSummary) {
	out := a.streams.Out
	if len(sessions) == 0 {
		fmt.Fprintln(out, DimStyle.Render("No sessions."))
		return
	}

	const idWidth, msgWidth, timeWidth = 36, 5, 16
	nameWidth := outputWidth(out) - idWidth - msgWidth - timeWidth - 6
	if nameWidth < 10 {
		nameWidth = 10
	}

	fmt.Fprintln(out, TitleStyle.Render(strings.Join([]string{
		util.Column("ID", idWidth),
		util.Column("NAME", nameWidth),
		util.Column("MSGS", msgWidth),
		"UPDATED",
	}, "  ")))
	for _, s := range sessions {
		fmt.Fprintf(out, "%s  %s  %s  %s\n",
			util.Column(s.ID, idWidth),
			util.Column(s.Name, nameWidth),
			util.Column(strconv.Itoa(s.MessageCount), msgWidth),
			DimStyle.Render(s.UpdatedAt.Local().Format(time.DateTime)[:timeWidth]))
	}
}
