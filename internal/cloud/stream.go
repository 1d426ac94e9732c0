// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

// MaxFrameSize is the maximum allowed size for a single SSE frame (64KB).
const MaxFrameSize = 64 * 1024

// maxLineSize allows a full frame on one line plus field name and terminator.
const maxLineSize = MaxFrameSize + len("data: ") + 2

// doneSentinel is the data payload that terminates a completion stream.
const doneSentinel = "[DONE]"

// =============================================================================
// STREAM EVENTS
// =============================================================================

// EventType tags a StreamEvent.
type EventType int

const (
	// EventDelta carries a non-empty text fragment.
	EventDelta EventType = iota
	// EventEnd marks normal completion.
	EventEnd
	// EventError marks failure. It is always the last event.
	EventError
)

// String returns the name of the event type.
func (t EventType) String() string {
	switch t {
	case EventDelta:
		return "delta"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamEvent is one element of a completion stream. Text is set for
// EventDelta, Err for EventError.
type StreamEvent struct {
	Type EventType
	Text string
	Err  *Error
}

// DeltaEvent returns a delta event carrying text.
func DeltaEvent(text string) StreamEvent {
	return StreamEvent{Type: EventDelta, Text: text}
}

// EndEvent returns the end-of-stream event.
func EndEvent() StreamEvent {
	return StreamEvent{Type: EventEnd}
}

// ErrorEvent returns a terminal error event.
func ErrorEvent(err *Error) StreamEvent {
	return StreamEvent{Type: EventError, Err: err}
}

// IsTerminal reports whether no further events follow this one.
func (e StreamEvent) IsTerminal() bool {
	return e.Type == EventEnd || e.Type == EventError
}

// =============================================================================
// WIRE FRAMES
// =============================================================================

// StreamChunk is a single decoded frame of a streaming response.
type StreamChunk struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
			Role    string `json:"role,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// GetContent returns the content from the first choice's delta.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// GetFinishReason returns the finish reason of the first choice, if any.
func (c *StreamChunk) GetFinishReason() string {
	if len(c.Choices) > 0 && c.Choices[0].FinishReason != nil {
		return *c.Choices[0].FinishReason
	}
	return ""
}

// ErrorMessage returns the message of an in-stream error object.
func (c *StreamChunk) ErrorMessage() (string, bool) {
	if c.Error == nil {
		return "", false
	}
	if c.Error.Message == "" {
		return "server reported an error", true
	}
	return c.Error.Message, true
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
//
// Only data fields are collected. Comment lines and the event, id and retry
// fields are ignored.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{
		reader: bufio.NewReaderSize(r, 4096),
	}
}

// ReadFrame returns the data of the next event, with multiple data lines
// joined by a newline. It returns io.EOF once the stream is exhausted and
// ErrFrameTooLarge when the frame exceeds MaxFrameSize.
func (s *SSEReader) ReadFrame() ([]byte, error) {
	var data []byte
	haveData := false

	for {
		line, err := s.readLine()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		switch {
		case len(line) == 0:
			// Blank line dispatches the event.
			if haveData {
				return data, nil
			}
		case line[0] == ':':
			// comment
		case bytes.HasPrefix(line, []byte("data:")):
			value := bytes.TrimPrefix(line[5:], []byte(" "))
			if haveData {
				data = append(data, '\n')
			}
			data = append(data, value...)
			haveData = true
			if len(data) > MaxFrameSize {
				return nil, ErrFrameTooLarge
			}
		}

		if errors.Is(err, io.EOF) {
			if haveData {
				return data, nil
			}
			return nil, io.EOF
		}
	}
}

// readLine reads one line including its terminator, refusing lines longer
// than MaxFrameSize.
func (s *SSEReader) readLine() ([]byte, error) {
	var line []byte
	for {
		chunk, err := s.reader.ReadSlice('\n')
		if len(line)+len(chunk) > maxLineSize {
			return nil, ErrFrameTooLarge
		}
		line = append(line, chunk...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return line, err
	}
}
