// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Styles are the shared styles of the subcommands. The chat loop has its
// own in the render package.
type Styles struct {
	Title     lipgloss.Style
	Error     lipgloss.Style
	Dim       lipgloss.Style
	ID        lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
}

// NewStyles builds the styles for output written to w.
func NewStyles(w io.Writer, profile termenv.Profile) Styles {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(profile)

	return Styles{
		// Cyan (#39), matching the banner.
		Title: r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		Error: r.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		Dim:   r.NewStyle().Foreground(lipgloss.Color("242")),
		ID:    r.NewStyle().Foreground(lipgloss.Color("214")),
		// Role headings use the basic ANSI green and blue.
		User:      r.NewStyle().Bold(true).Foreground(lipgloss.Color("2")),
		Assistant: r.NewStyle().Bold(true).Foreground(lipgloss.Color("4")),
	}
}
