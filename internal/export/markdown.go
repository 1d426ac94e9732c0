// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/termline/internal/model"
	"github.com/jeranaias/termline/internal/storage"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a conversation to Markdown with a YAML front matter
// header.
func (e *MarkdownExporter) Export(conv *storage.StoredConversation) ([]byte, error) {
	if conv == nil {
		return nil, fmt.Errorf("conversation is nil")
	}
	msgs := visibleMessages(conv, e.options)
	if len(msgs) == 0 {
		return nil, ErrEmptyConversation
	}

	var sb strings.Builder

	sb.WriteString("---\n")
	fmt.Fprintf(&sb, "id: %s\n", conv.ID)
	fmt.Fprintf(&sb, "title: %s\n", escapeYAML(conv.Preview()))
	fmt.Fprintf(&sb, "model: %s\n", conv.Model)
	fmt.Fprintf(&sb, "date: %s\n", conv.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "messages: %d\n", len(msgs))
	fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
	sb.WriteString("generator: termline\n")
	sb.WriteString("---\n\n")

	for i, msg := range msgs {
		label := formatRoleLabel(msg.Role)
		if e.options.IncludeTimestamps && !msg.CreatedAt.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, msg.CreatedAt.Format("15:04:05"))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		// Content is already markdown.
		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if i < len(msgs)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

func formatRoleLabel(role model.Role) string {
	if !role.Valid() {
		return "Unknown"
	}
	return role.DisplayName()
}

// escapeYAML quotes a front matter value when YAML would misread it.
func escapeYAML(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, ":#{}[]&*!|>'\"%@`,") || strings.HasPrefix(s, "-") {
		return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s) + `"`
	}
	return s
}
