// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"context"
	"errors"
	"fmt"
)

// Error variables for common API failures. They are carried in Error.Err so
// callers can test with errors.Is.
var (
	// ErrNotConfigured indicates the API key is not set.
	ErrNotConfigured = errors.New("API key not configured")

	// ErrAuthFailed indicates the server rejected the credential.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrRateLimited indicates too many requests were made.
	ErrRateLimited = errors.New("rate limited")

	// ErrFrameTooLarge indicates a single SSE frame exceeded MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrIncompleteStream indicates the connection closed before the
	// completion finished.
	ErrIncompleteStream = errors.New("stream closed before completion")

	// ErrNoTerminalEvent indicates an event sequence ended without End or Error.
	ErrNoTerminalEvent = errors.New("stream ended without terminal event")
)

// =============================================================================
// ERROR KINDS
// =============================================================================

// ErrorKind classifies a failed turn.
type ErrorKind int

const (
	// KindTransport covers network failures, non-success HTTP statuses and
	// error frames sent by the server mid-stream.
	KindTransport ErrorKind = iota + 1

	// KindAuth is a rejected credential (HTTP 401 or 403).
	KindAuth

	// KindProtocol is a frame that could not be understood.
	KindProtocol

	// KindCancelled is a user interrupt.
	KindCancelled
)

// String returns the lower-case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	case KindCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// =============================================================================
// ERROR TYPE
// =============================================================================

// maxDetailDisplay bounds how much of Detail is shown by Error().
const maxDetailDisplay = 200

// Error is a classified streaming failure.
type Error struct {
	Kind   ErrorKind
	Detail string // human-readable message, or the raw frame for protocol errors
	Status int    // HTTP status, 0 when not applicable
	Err    error  // underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	detail := truncateDetail(e.Detail)
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}

	switch {
	case e.Kind == KindCancelled:
		return "request cancelled"
	case e.Kind == KindProtocol:
		return fmt.Sprintf("protocol error: malformed frame: %s", detail)
	case e.Status != 0:
		return fmt.Sprintf("%s error (HTTP %d): %s", e.Kind, e.Status, detail)
	default:
		return fmt.Sprintf("%s error: %s", e.Kind, detail)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewCancelledError returns the error reported for an interrupted turn.
func NewCancelledError(cause error) *Error {
	if cause == nil {
		cause = context.Canceled
	}
	return &Error{Kind: KindCancelled, Err: cause}
}

// KindOf returns the kind of err if it is, or wraps, an *Error.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsCancelled reports whether err is a cancelled turn.
func IsCancelled(err error) bool {
	kind, ok := KindOf(err)
	return ok && kind == KindCancelled
}

func truncateDetail(s string) string {
	runes := []rune(s)
	if len(runes) <= maxDetailDisplay {
		return s
	}
	return string(runes[:maxDetailDisplay]) + "..."
}
