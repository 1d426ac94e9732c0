// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package repl runs the read-send-stream loop of an interactive chat.
//
// One Loop owns one conversation. Each turn appends the user's line,
// sends the full history to the completion client, streams the reply
// through the renderer and appends the assistant message only when the
// stream completes. Failed and interrupted turns leave the conversation
// with the user message alone.
package repl
