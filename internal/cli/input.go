// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/termline/internal/repl"
)

// inputHistoryFile is the name of the input history file in the config
// directory.
const inputHistoryFile = "input_history"

// =============================================================================
// INPUT HISTORY
// =============================================================================

// LineInput provides input history and line editing for the chat loop.
// It implements repl.LineReader.
type LineInput struct {
	line        *liner.State
	historyFile string
}

// NewLineInput creates a line editor that keeps its history in dir.
// An empty dir disables persistence.
func NewLineInput(dir string) *LineInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	in := &LineInput{line: line}
	if dir != "" {
		in.historyFile = filepath.Join(dir, inputHistoryFile)
	}
	in.LoadHistory()
	return in
}

// LoadHistory loads input history from file.
func (in *LineInput) LoadHistory() {
	if in.historyFile == "" {
		return
	}
	if f, err := os.Open(in.historyFile); err == nil {
		in.line.ReadHistory(f)
		f.Close()
	}
}

// Prompt reads a line. Ctrl-C maps to repl.ErrPromptAborted; Ctrl-D to
// io.EOF, which liner already returns.
func (in *LineInput) Prompt(prompt string) (string, error) {
	input, err := in.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", repl.ErrPromptAborted
		}
		return "", err
	}

	if strings.TrimSpace(input) != "" {
		in.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history, readable by the owner only.
func (in *LineInput) SaveHistory() error {
	if in.historyFile == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(in.historyFile), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(in.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = in.line.WriteHistory(f)
	return err
}

// Close saves history and restores the terminal.
func (in *LineInput) Close() error {
	saveErr := in.SaveHistory()
	if err := in.line.Close(); err != nil {
		return err
	}
	return saveErr
}
