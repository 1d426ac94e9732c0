// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-runewidth"
)

// =============================================================================
// MODES AND STYLES
// =============================================================================

// Mode selects what happens to a response once it is complete.
type Mode string

const (
	// ModeOff leaves the raw streamed text.
	ModeOff Mode = "off"
	// ModeReplace erases the raw text and prints the markdown rendering.
	ModeReplace Mode = "replace"
	// ModeConversation clears the screen and redraws the whole conversation.
	ModeConversation Mode = "conversation"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeOff, ModeReplace, ModeConversation:
		return m, nil
	default:
		return "", fmt.Errorf("unknown markdown mode %q (want off, replace or conversation)", s)
	}
}

// Style names accepted for glamour.
const (
	StyleAuto  = "auto"
	StyleDark  = "dark"
	StyleLight = "light"
	StyleNoTTY = "notty"
)

// ValidStyle reports whether s names a known glamour style.
func ValidStyle(s string) bool {
	switch s {
	case StyleAuto, StyleDark, StyleLight, StyleNoTTY:
		return true
	}
	return false
}

func styleOption(style string) glamour.TermRendererOption {
	switch style {
	case StyleDark, StyleLight, StyleNoTTY:
		return glamour.WithStandardStyle(style)
	default:
		return glamour.WithAutoStyle()
	}
}

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// markdown caches a glamour renderer for the current wrap width.
type markdown struct {
	style    string
	wordWrap int

	width int
	tr    *glamour.TermRenderer
}

func newMarkdown(style string, wordWrap int) *markdown {
	return &markdown{style: style, wordWrap: wordWrap}
}

// render renders content wrapped to the smaller of the configured wrap and
// the terminal width.
func (m *markdown) render(content string, termWidth int) (string, error) {
	width := m.wordWrap
	if termWidth > 0 && (width <= 0 || termWidth < width) {
		width = termWidth
	}

	if m.tr == nil || m.width != width {
		tr, err := glamour.NewTermRenderer(
			styleOption(m.style),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "", fmt.Errorf("create markdown renderer: %w", err)
		}
		m.tr = tr
		m.width = width
	}

	return m.tr.Render(content)
}

// RenderMarkdown renders content once with the given style and width.
// It returns content unchanged if rendering fails.
func RenderMarkdown(content, style string, width int) string {
	out, err := newMarkdown(style, width).render(content, 0)
	if err != nil {
		return content
	}
	return out
}

// =============================================================================
// ROW COUNTING
// =============================================================================

const tabWidth = 8

// rowCount returns how many terminal rows text occupies when printed from
// column zero on a terminal width columns wide. The row holding the cursor
// after the last character is included.
func rowCount(text string, width int) int {
	if width <= 0 {
		width = 80
	}

	rows := 0
	for _, line := range strings.Split(text, "\n") {
		w := runewidth.StringWidth(expandTabs(line))
		if w == 0 {
			rows++
			continue
		}
		rows += (w + width - 1) / width
	}
	return rows
}

// expandTabs replaces tabs with spaces up to the next tab stop.
func expandTabs(line string) string {
	if !strings.Contains(line, "\t") {
		return line
	}
	var b strings.Builder
	col := 0
	for _, r := range line {
		if r == '\t' {
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
			continue
		}
		b.WriteRune(r)
		col += runewidth.RuneWidth(r)
	}
	return b.String()
}
