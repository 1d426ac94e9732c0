// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the termline command line.
//
// # Commands
//
//	termline                  Interactive chat (default)
//	termline history          List saved conversations
//	termline history show ID  Print one conversation
//
// The root command wires configuration, logging, the completion client,
// the renderer and the transcript journal into a repl.Loop, and runs it
// beside the config watcher in one errgroup.
package cli
