// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// Version information (set at build time).
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

// NewRootCmd creates the termline command. Without a subcommand it starts
// the interactive chat.
func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "termline",
		Short: "Chat with an OpenAI-compatible model in the terminal",
		Long: `Termline streams replies from an OpenAI-compatible chat completions
endpoint into your terminal, keeping the whole conversation as context.

Set OPENAI_API_KEY (in the environment or a .env file) before starting.
Type 'exit' or ':q' to quit, Ctrl-C to interrupt a reply.`,
		Version:       Version + " (" + GitCommit + ")",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default ~/.termline/config.toml)")
	rootCmd.AddCommand(newHistoryCmd(&configPath))

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
