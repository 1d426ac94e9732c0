// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/termline/internal/storage"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports conversations to JSON. The messages array uses the
// chat completions shape, so an export can be replayed as a request.
type JSONExporter struct {
	options *Options
}

type jsonConversation struct {
	ID        string        `json:"id"`
	Model     string        `json:"model"`
	StartedAt time.Time     `json:"started_at"`
	Messages  []jsonMessage `json:"messages"`
}

type jsonMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export converts a conversation to indented JSON.
func (e *JSONExporter) Export(conv *storage.StoredConversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	msgs := visibleMessages(conv, e.options)
	if len(msgs) == 0 {
		return nil, ErrEmptyConversation
	}

	out := jsonConversation{
		ID:        conv.ID,
		Model:     conv.Model,
		StartedAt: conv.StartedAt.UTC(),
		Messages:  make([]jsonMessage, len(msgs)),
	}
	for i, msg := range msgs {
		out.Messages[i] = jsonMessage{
			Role:      string(msg.Role),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.UTC(),
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
