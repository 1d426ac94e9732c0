// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream folds a completion event stream into a finished assistant
// message.
//
// The Assembler forwards every delta to a Sink as it arrives and, on normal
// completion, appends the concatenated text to a Recorder exactly once.
// Failed or cancelled streams append nothing; the partial text is returned
// inside a *StreamError for diagnostics.
package stream
