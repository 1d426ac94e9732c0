// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for termline.
//
// Colors and markdown re-rendering need a terminal on stdout. Piped output
// gets plain text, and NO_COLOR / FORCE_COLOR override the detection.

package cli

import (
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TERMINAL SIZE
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails.
	DefaultTerminalWidth = 80

	// DefaultTerminalHeight is the fallback height when detection fails.
	DefaultTerminalHeight = 24
)

// GetTerminalSize returns both width and height of the terminal.
// Returns defaults (80x24) if size cannot be determined.
func GetTerminalSize() (width, height int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return DefaultTerminalWidth, DefaultTerminalHeight
	}
	return w, h
}

// GetTerminalWidth returns the current terminal width.
func GetTerminalWidth() int {
	w, _ := GetTerminalSize()
	return w
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

// colorsEnabled decides whether to emit colors. NO_COLOR wins over
// FORCE_COLOR, which wins over TTY detection. See https://no-color.org/.
func colorsEnabled(getenv func(string) string, tty bool) bool {
	if getenv("NO_COLOR") != "" {
		return false
	}
	if getenv("FORCE_COLOR") != "" {
		return true
	}
	return tty
}

// ColorsEnabled returns true if colored output should be used.
func ColorsEnabled() bool {
	return colorsEnabled(os.Getenv, IsStdoutTTY())
}

// GetColorProfile returns the appropriate termenv color profile.
// Returns Ascii (no colors) for non-TTY or when NO_COLOR is set.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	if !IsStdoutTTY() {
		// FORCE_COLOR on a pipe: termenv would detect Ascii.
		return termenv.ANSI256
	}
	return termenv.ColorProfile()
}
