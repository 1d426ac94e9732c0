// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package repl

// State is a step of the turn state machine.
type State int

const (
	StateAwaitingInput State = iota
	StateSending
	StateStreaming
	StateAppending
	StateReporting
	StateExited
)

// String returns the state name used in logs.
func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateAppending:
		return "appending"
	case StateReporting:
		return "reporting"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// isExitCommand reports whether a line ends the session. Matching is exact
// after trimming surrounding whitespace.
func isExitCommand(line string) bool {
	switch line {
	case "exit", ":q":
		return true
	}
	return false
}
