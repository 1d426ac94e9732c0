// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render writes streamed responses to the terminal.
//
// Fragments are printed as they arrive. When a response completes the
// Renderer can re-render it as markdown with glamour, either in place of
// the raw text (ModeReplace) or by redrawing the whole conversation
// (ModeConversation). Diagnostics go to the error writer.
package render
