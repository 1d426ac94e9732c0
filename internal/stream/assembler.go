// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/termline/internal/cloud"
	"github.com/jeranaias/termline/internal/model"
)

// =============================================================================
// COLLABORATORS
// =============================================================================

// Sink receives text fragments as they arrive.
type Sink interface {
	OnIncrement(fragment string)
}

// Recorder stores the completed assistant message.
type Recorder interface {
	AppendAssistant(content string) model.Message
}

// =============================================================================
// ERRORS AND STATS
// =============================================================================

// StreamError represents a failed stream, preserving any partial content
// received before the error. The partial content is never recorded.
type StreamError struct {
	Partial string
	Err     *cloud.Error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	if e.Partial != "" {
		return fmt.Sprintf("stream error (partial content discarded: %d chars): %v", len([]rune(e.Partial)), e.Err)
	}
	return fmt.Sprintf("stream error: %v", e.Err)
}

// Unwrap returns the classified cloud error.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// Kind returns the error classification.
func (e *StreamError) Kind() cloud.ErrorKind {
	return e.Err.Kind
}

// Stats holds statistics collected during one assembly.
type Stats struct {
	FirstDelta time.Duration
	Total      time.Duration
	Deltas     int
	Chars      int
}

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler consumes one event stream. It is single-use.
type Assembler struct {
	sink     Sink
	recorder Recorder

	accumulated strings.Builder
	finished    bool
	stats       Stats
}

// NewAssembler creates an assembler writing to sink and recorder.
func NewAssembler(sink Sink, recorder Recorder) *Assembler {
	return &Assembler{sink: sink, recorder: recorder}
}

// Run assembles a single stream with a fresh Assembler.
func Run(ctx context.Context, events <-chan cloud.StreamEvent, sink Sink, recorder Recorder) (model.Message, error) {
	return NewAssembler(sink, recorder).Run(ctx, events)
}

// Run consumes events until a terminal event, cancellation or the channel
// closing. It returns either the recorded message or a *StreamError, never
// both.
func (a *Assembler) Run(ctx context.Context, events <-chan cloud.StreamEvent) (model.Message, error) {
	start := time.Now()
	defer func() { a.stats.Total = time.Since(start) }()

	for {
		if err := ctx.Err(); err != nil {
			return a.fail(cloud.NewCancelledError(err))
		}

		select {
		case <-ctx.Done():
			return a.fail(cloud.NewCancelledError(ctx.Err()))

		case ev, ok := <-events:
			if err := ctx.Err(); err != nil {
				return a.fail(cloud.NewCancelledError(err))
			}
			if !ok {
				return a.fail(&cloud.Error{
					Kind:   cloud.KindProtocol,
					Detail: cloud.ErrNoTerminalEvent.Error(),
					Err:    cloud.ErrNoTerminalEvent,
				})
			}

			switch ev.Type {
			case cloud.EventDelta:
				if ev.Text == "" {
					continue
				}
				if a.stats.Deltas == 0 {
					a.stats.FirstDelta = time.Since(start)
				}
				a.stats.Deltas++
				a.accumulated.WriteString(ev.Text)
				a.sink.OnIncrement(ev.Text)

			case cloud.EventEnd:
				a.finished = true
				content := a.accumulated.String()
				a.stats.Chars = len([]rune(content))
				return a.recorder.AppendAssistant(content), nil

			case cloud.EventError:
				cause := ev.Err
				if cause == nil {
					cause = &cloud.Error{Kind: cloud.KindTransport, Detail: "unspecified stream error"}
				}
				return a.fail(cause)

			default:
				return a.fail(&cloud.Error{
					Kind:   cloud.KindProtocol,
					Detail: fmt.Sprintf("unknown event type %d", int(ev.Type)),
				})
			}
		}
	}
}

func (a *Assembler) fail(err *cloud.Error) (model.Message, error) {
	partial := a.accumulated.String()
	a.stats.Chars = len([]rune(partial))
	a.accumulated.Reset()
	return model.Message{}, &StreamError{Partial: partial, Err: err}
}

// Partial returns the text accumulated so far.
func (a *Assembler) Partial() string {
	return a.accumulated.String()
}

// Finished reports whether the stream completed normally.
func (a *Assembler) Finished() bool {
	return a.finished
}

// Stats returns the statistics of the last Run.
func (a *Assembler) Stats() Stats {
	return a.stats
}
