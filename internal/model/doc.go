// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Role: Message role enumeration (system, user, assistant)
//   - Message: Single immutable message with role, content and timestamp
//   - Conversation: Ordered history replayed as context on every request
//
// # Usage
//
//	conv := model.NewConversation(model.DefaultSystemPrompt)
//	conv.AppendUser("hello")
//	conv.AppendAssistant("Hi there")
//	for _, msg := range conv.Messages() {
//	    fmt.Println(msg.Role, msg.Content)
//	}
//
// A Conversation is owned by a single goroutine (the REPL loop) and is not
// safe for concurrent mutation.
package model
