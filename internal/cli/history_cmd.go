// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/jeranaias/termline/internal/export"
	"github.com/jeranaias/termline/internal/model"
	"github.com/jeranaias/termline/internal/render"
	"github.com/jeranaias/termline/internal/storage"
)

// historyListLimit is the number of conversations `history` lists.
const historyListLimit = 20

// newHistoryCmd creates the history command. configPath points at the root
// command's --config value.
func newHistoryCmd(configPath *string) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List saved conversations",
		Long: `Lists the most recent conversations from the transcript journal.

Example:
  termline history               # List recent conversations
  termline history show 3f2a9c   # Show a conversation by ID or ID prefix
  termline history export 3f2a9c -f json -o ~/notes`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, *configPath, func(ctx context.Context, j *storage.Journal) error {
				styles := NewStyles(cmd.OutOrStdout(), GetColorProfile())
				return listHistory(ctx, cmd.OutOrStdout(), j, GetTerminalWidth(), styles)
			})
		},
	}

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show a saved conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, *configPath, func(ctx context.Context, j *storage.Journal) error {
				conv, err := j.Load(ctx, args[0])
				if err != nil {
					return err
				}
				style := render.StyleNoTTY
				if IsStdoutTTY() {
					style = render.StyleAuto
				}
				styles := NewStyles(cmd.OutOrStdout(), GetColorProfile())
				showConversation(cmd.OutOrStdout(), conv, style, GetTerminalWidth(), styles)
				return nil
			})
		},
	}

	var (
		exportFormat string
		exportDir    string
		exportSystem bool
	)
	exportCmd := &cobra.Command{
		Use:   "export ID",
		Short: "Export a saved conversation to Markdown or JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, *configPath, func(ctx context.Context, j *storage.Journal) error {
				conv, err := j.Load(ctx, args[0])
				if err != nil {
					return err
				}
				opts := export.DefaultOptions()
				opts.OutputDir = exportDir
				opts.IncludeSystem = exportSystem
				exporter, err := export.New(exportFormat, opts)
				if err != nil {
					return err
				}
				path, err := export.ExportToFile(conv, exporter, opts)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "markdown", "Output format: markdown or json")
	exportCmd.Flags().StringVarP(&exportDir, "output", "o", ".", "Directory to write the file to")
	exportCmd.Flags().BoolVar(&exportSystem, "system", false, "Include the system prompt")

	historyCmd.AddCommand(showCmd, exportCmd)
	return historyCmd
}

// withJournal opens the configured journal for the duration of fn.
func withJournal(cmd *cobra.Command, configPath string, fn func(context.Context, *storage.Journal) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return errors.New("history is disabled ([history] enabled = false)")
	}

	j, err := storage.Open(ctx, cfg.History.Path)
	if err != nil {
		return err
	}
	defer j.Close()

	return fn(ctx, j)
}

// listHistory prints one line per conversation, with the first user
// message truncated to the terminal width.
func listHistory(ctx context.Context, w io.Writer, j *storage.Journal, width int, styles Styles) error {
	metas, err := j.List(ctx, historyListLimit)
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Fprintln(w, styles.Dim.Render("No saved conversations."))
		return nil
	}

	for _, meta := range metas {
		id := shortID(meta.ID)
		when := meta.UpdatedAt.Format("2006-01-02 15:04")
		prefix := fmt.Sprintf("%s  %s  %3d  ", id, when, meta.MessageCount)

		preview := flatten(meta.Preview)
		if room := width - runewidth.StringWidth(prefix); room > 0 {
			preview = runewidth.Truncate(preview, room, "...")
		} else {
			preview = ""
		}

		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			styles.ID.Render(id),
			styles.Dim.Render(when),
			styles.Dim.Render(fmt.Sprintf("%3d", meta.MessageCount)),
			preview)
	}
	return nil
}

// showConversation prints every user and assistant message with a role
// heading and rendered markdown.
func showConversation(w io.Writer, conv *storage.StoredConversation, style string, width int, styles Styles) {
	fmt.Fprintln(w, styles.Title.Render("Conversation "+conv.ID))
	fmt.Fprintln(w, styles.Dim.Render(fmt.Sprintf("%s  model %s", conv.StartedAt.Format("2006-01-02 15:04"), conv.Model)))
	fmt.Fprintln(w)

	for _, msg := range conv.Messages {
		var heading string
		switch msg.Role {
		case model.RoleUser:
			heading = styles.User.Render(string(msg.Role))
		case model.RoleAssistant:
			heading = styles.Assistant.Render(string(msg.Role))
		default:
			continue
		}
		fmt.Fprintln(w, heading)
		io.WriteString(w, render.RenderMarkdown(msg.Content, style, width))
		fmt.Fprintln(w)
	}
}

// shortID returns the first block of a UUID.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// flatten puts text on one line.
func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
