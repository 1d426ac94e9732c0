// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/termline/internal/cloud"
	"github.com/jeranaias/termline/internal/model"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type recordingSink struct {
	fragments []string
}

func (s *recordingSink) OnIncrement(fragment string) {
	s.fragments = append(s.fragments, fragment)
}

// feed returns a closed channel pre-loaded with events.
func feed(events ...cloud.StreamEvent) <-chan cloud.StreamEvent {
	ch := make(chan cloud.StreamEvent, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func newStore() *model.Conversation {
	conv := model.NewConversation("system")
	conv.AppendUser("question")
	return conv
}

func requireStreamError(t *testing.T, err error) *StreamError {
	t.Helper()
	var streamErr *StreamError
	require.True(t, errors.As(err, &streamErr), "expected *StreamError, got %T", err)
	return streamErr
}

// =============================================================================
// SUCCESS TESTS
// =============================================================================

func TestRun_ConcatenatesDeltas(t *testing.T) {
	tests := []struct {
		name   string
		deltas []string
	}{
		{"no deltas", nil},
		{"single", []string{"hello"}},
		{"several", []string{"Hi", " there", ", how", " are you?"}},
		{"unicode split", []string{"caf", "é ", "✓", "日本"}},
		{"markdown", []string{"# Title\n", "- item\n", "```go\nx := 1\n```"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events := make([]cloud.StreamEvent, 0, len(tc.deltas)+1)
			for _, d := range tc.deltas {
				events = append(events, cloud.DeltaEvent(d))
			}
			events = append(events, cloud.EndEvent())

			sink := &recordingSink{}
			store := newStore()
			before := store.Len()

			msg, err := Run(context.Background(), feed(events...), sink, store)

			require.NoError(t, err)
			want := strings.Join(tc.deltas, "")
			assert.Equal(t, want, msg.Content)
			assert.Equal(t, model.RoleAssistant, msg.Role)
			assert.Equal(t, tc.deltas, sink.fragments)
			assert.Equal(t, before+1, store.Len())
			assert.Equal(t, want, store.Last().Content)
		})
	}
}

func TestRun_HelloScenario(t *testing.T) {
	sink := &recordingSink{}
	store := newStore()

	a := NewAssembler(sink, store)
	msg, err := a.Run(context.Background(), feed(
		cloud.DeltaEvent("Hi"),
		cloud.DeltaEvent(" there"),
		cloud.EndEvent(),
	))

	require.NoError(t, err)
	assert.Equal(t, []string{"Hi", " there"}, sink.fragments)
	assert.Equal(t, "Hi there", msg.Content)
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.True(t, a.Finished())
	assert.Equal(t, 2, a.Stats().Deltas)
	assert.Equal(t, 8, a.Stats().Chars)
}

func TestRun_EmptyDeltaIgnored(t *testing.T) {
	sink := &recordingSink{}
	_, err := Run(context.Background(), feed(
		cloud.DeltaEvent(""),
		cloud.DeltaEvent("x"),
		cloud.EndEvent(),
	), sink, newStore())

	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, sink.fragments)
}

// =============================================================================
// FAILURE TESTS
// =============================================================================

func TestRun_ErrorDiscardsPartial(t *testing.T) {
	sink := &recordingSink{}
	store := newStore()
	before := store.Len()

	protoErr := &cloud.Error{Kind: cloud.KindProtocol, Detail: "{bad"}
	msg, err := Run(context.Background(), feed(
		cloud.DeltaEvent("Par"),
		cloud.ErrorEvent(protoErr),
	), sink, store)

	require.Error(t, err)
	assert.Empty(t, msg.Content)
	assert.Equal(t, before, store.Len(), "partial must not be appended")
	assert.Equal(t, []string{"Par"}, sink.fragments)

	streamErr := requireStreamError(t, err)
	assert.Equal(t, "Par", streamErr.Partial)
	assert.Equal(t, cloud.KindProtocol, streamErr.Kind())
	assert.ErrorIs(t, err, protoErr)
}

func TestRun_EventsAfterTerminalIgnored(t *testing.T) {
	store := newStore()
	before := store.Len()

	_, err := Run(context.Background(), feed(
		cloud.ErrorEvent(&cloud.Error{Kind: cloud.KindTransport}),
		cloud.DeltaEvent("late"),
		cloud.EndEvent(),
	), &recordingSink{}, store)

	require.Error(t, err)
	assert.Equal(t, before, store.Len())
}

func TestRun_ClosedWithoutTerminalEvent(t *testing.T) {
	store := newStore()
	before := store.Len()

	_, err := Run(context.Background(), feed(cloud.DeltaEvent("half")), &recordingSink{}, store)

	streamErr := requireStreamError(t, err)
	assert.Equal(t, cloud.KindProtocol, streamErr.Kind())
	assert.ErrorIs(t, err, cloud.ErrNoTerminalEvent)
	assert.Equal(t, "half", streamErr.Partial)
	assert.Equal(t, before, store.Len())
}

func TestRun_NilErrorEventStillFails(t *testing.T) {
	_, err := Run(context.Background(), feed(cloud.StreamEvent{Type: cloud.EventError}), &recordingSink{}, newStore())

	streamErr := requireStreamError(t, err)
	assert.Equal(t, cloud.KindTransport, streamErr.Kind())
}

// =============================================================================
// CANCELLATION TESTS
// =============================================================================

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := &recordingSink{}
	_, err := Run(ctx, feed(cloud.DeltaEvent("x"), cloud.EndEvent()), sink, newStore())

	streamErr := requireStreamError(t, err)
	assert.Equal(t, cloud.KindCancelled, streamErr.Kind())
	assert.Empty(t, sink.fragments)
}

func TestRun_CancelWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan cloud.StreamEvent)
	store := newStore()
	before := store.Len()
	sink := &recordingSink{}

	done := make(chan error, 1)
	go func() {
		_, err := Run(ctx, events, sink, store)
		done <- err
	}()

	events <- cloud.DeltaEvent("partial")
	cancel()

	select {
	case err := <-done:
		streamErr := requireStreamError(t, err)
		assert.Equal(t, cloud.KindCancelled, streamErr.Kind())
		assert.True(t, cloud.IsCancelled(err))
		assert.Equal(t, "partial", streamErr.Partial)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	assert.Equal(t, before, store.Len())
}

func TestRun_ClosedAfterCancelIsCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make(chan cloud.StreamEvent)
	close(events)

	_, err := Run(ctx, events, &recordingSink{}, newStore())
	assert.True(t, cloud.IsCancelled(err))
}

func TestStreamError_Message(t *testing.T) {
	withPartial := &StreamError{Partial: "héllo", Err: &cloud.Error{Kind: cloud.KindTransport, Detail: "reset"}}
	assert.Equal(t, "stream error (partial content discarded: 5 chars): transport error: reset", withPartial.Error())

	without := &StreamError{Err: cloud.NewCancelledError(nil)}
	assert.Equal(t, "stream error: request cancelled", without.Error())
}
