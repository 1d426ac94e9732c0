// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// DefaultSystemPrompt is the system message every conversation starts with
// unless the configuration overrides it.
const DefaultSystemPrompt = "You are a chat assistant living in my computer terminal. I am probably trying to get quick answers."

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation holds the ordered message history of a chat session.
//
// The first message is always the system message given to NewConversation.
// It is never mutated or removed; the only way to change history is to
// append a complete user or assistant message.
type Conversation struct {
	messages []Message
}

// NewConversation creates a conversation seeded with the system message.
func NewConversation(systemPrompt string) *Conversation {
	return &Conversation{
		messages: []Message{NewMessage(RoleSystem, systemPrompt)},
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AppendUser appends a user message and returns it.
func (c *Conversation) AppendUser(content string) Message {
	return c.append(RoleUser, content)
}

// AppendAssistant appends a completed assistant message and returns it.
func (c *Conversation) AppendAssistant(content string) Message {
	return c.append(RoleAssistant, content)
}

func (c *Conversation) append(role Role, content string) Message {
	msg := NewMessage(role, content)
	c.messages = append(c.messages, msg)
	return msg
}

// System returns the system message.
func (c *Conversation) System() Message {
	return c.messages[0]
}

// Last returns the most recent message.
func (c *Conversation) Last() Message {
	return c.messages[len(c.messages)-1]
}

// Len returns the number of messages, including the system message.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Turns returns the number of user messages sent so far.
func (c *Conversation) Turns() int {
	n := 0
	for _, msg := range c.messages {
		if msg.Role == RoleUser {
			n++
		}
	}
	return n
}

// Messages returns a snapshot of the history in conversation order.
// The returned slice is a copy and may be retained by the caller.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}
