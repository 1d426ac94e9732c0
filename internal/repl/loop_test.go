// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package repl

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/termline/internal/cloud"
	"github.com/jeranaias/termline/internal/config"
	"github.com/jeranaias/termline/internal/model"
	"github.com/jeranaias/termline/internal/render"
)

// =============================================================================
// FAKES
// =============================================================================

type scriptedClient struct {
	requests []cloud.ChatRequest
	respond  func(ctx context.Context, events chan<- cloud.StreamEvent)
}

func (c *scriptedClient) Model() string { return "test-model" }

func (c *scriptedClient) Send(ctx context.Context, req cloud.ChatRequest) <-chan cloud.StreamEvent {
	c.requests = append(c.requests, req)
	events := make(chan cloud.StreamEvent)
	go func() {
		defer close(events)
		c.respond(ctx, events)
	}()
	return events
}

// replyWith streams the given events, stopping early if ctx ends.
func replyWith(evs ...cloud.StreamEvent) func(context.Context, chan<- cloud.StreamEvent) {
	return func(ctx context.Context, events chan<- cloud.StreamEvent) {
		for _, ev := range evs {
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

type inputLine struct {
	text string
	err  error
}

type scriptedInput struct {
	lines   []inputLine
	prompts int
}

func lines(texts ...string) *scriptedInput {
	in := &scriptedInput{}
	for _, t := range texts {
		in.lines = append(in.lines, inputLine{text: t})
	}
	return in
}

func (in *scriptedInput) Prompt(string) (string, error) {
	in.prompts++
	if len(in.lines) == 0 {
		return "", io.EOF
	}
	next := in.lines[0]
	in.lines = in.lines[1:]
	return next.text, next.err
}

type recordingRenderer struct {
	increments []string
	completed  []model.Message
	errs       []error
	uis        []render.UI
	turns      int

	onIncrement func(string)
}

func (r *recordingRenderer) Prompt() string { return "> " }
func (r *recordingRenderer) SetUI(ui render.UI) { r.uis = append(r.uis, ui) }
func (r *recordingRenderer) BeginTurn() { r.turns++ }
func (r *recordingRenderer) OnError(err error) { r.errs = append(r.errs, err) }
func (r *recordingRenderer) OnIncrement(f string) {
	r.increments = append(r.increments, f)
	if r.onIncrement != nil {
		r.onIncrement(f)
	}
}

func (r *recordingRenderer) OnComplete(final model.Message, _ []model.Message) {
	r.completed = append(r.completed, final)
}

type memoryJournal struct {
	msgs []model.Message
	fail bool
}

func (j *memoryJournal) Record(_ context.Context, msg model.Message) error {
	if j.fail {
		return errors.New("disk full")
	}
	j.msgs = append(j.msgs, msg)
	return nil
}

func newLoop(client Client, input LineReader, r *recordingRenderer) *Loop {
	return New(Options{Client: client, Input: input, Renderer: r, SystemPrompt: "system"})
}

func helloClient() *scriptedClient {
	return &scriptedClient{respond: replyWith(
		cloud.DeltaEvent("Hi"),
		cloud.DeltaEvent(" there"),
		cloud.EndEvent(),
	)}
}

// =============================================================================
// INPUT HANDLING
// =============================================================================

func TestRun_ExitCommands(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		wantTurn bool
	}{
		{"exit", "exit", false},
		{"colon q", ":q", false},
		{"padded colon q", "  :q  ", false},
		{"padded exit", "\texit\n", false},
		{"capitalized exit is a message", "Exit", true},
		{"quit is a message", "quit", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := helloClient()
			r := &recordingRenderer{}
			loop := newLoop(client, lines(tt.line, "exit"), r)

			require.NoError(t, loop.Run(context.Background()))
			assert.Equal(t, tt.wantTurn, len(client.requests) == 1)
			assert.Equal(t, StateExited, loop.State())
		})
	}
}

func TestRun_EmptyInputReprompts(t *testing.T) {
	client := helloClient()
	in := lines("", "   ", "\t", "exit")
	loop := newLoop(client, in, &recordingRenderer{})

	require.NoError(t, loop.Run(context.Background()))
	assert.Empty(t, client.requests)
	assert.Equal(t, 4, in.prompts)
	assert.Equal(t, 1, loop.Conversation().Len())
}

func TestRun_EOFExits(t *testing.T) {
	in := lines()
	loop := newLoop(helloClient(), in, &recordingRenderer{})

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 1, in.prompts)
}

func TestRun_AbortedPromptReprompts(t *testing.T) {
	client := helloClient()
	in := &scriptedInput{lines: []inputLine{
		{err: ErrPromptAborted},
		{text: "hello"},
	}}
	loop := newLoop(client, in, &recordingRenderer{})

	require.NoError(t, loop.Run(context.Background()))
	assert.Len(t, client.requests, 1)
	assert.Equal(t, 3, in.prompts)
}

func TestRun_InputErrorExits(t *testing.T) {
	in := &scriptedInput{lines: []inputLine{{err: errors.New("tty gone")}, {text: "hello"}}}
	client := helloClient()
	loop := newLoop(client, in, &recordingRenderer{})

	require.NoError(t, loop.Run(context.Background()))
	assert.Empty(t, client.requests)
}

func TestRun_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	in := lines("hello")
	loop := newLoop(helloClient(), in, &recordingRenderer{})

	assert.ErrorIs(t, loop.Run(ctx), context.Canceled)
	assert.Zero(t, in.prompts)
}

// =============================================================================
// TURNS
// =============================================================================

func TestRun_HelloScenario(t *testing.T) {
	client := helloClient()
	r := &recordingRenderer{}
	loop := newLoop(client, lines("hello", "exit"), r)

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []string{"Hi", " there"}, r.increments)
	require.Len(t, r.completed, 1)
	assert.Equal(t, "Hi there", r.completed[0].Content)
	assert.Empty(t, r.errs)

	msgs := loop.Conversation().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, model.RoleUser, msgs[1].Role)
	assert.Equal(t, "hello", msgs[1].Content)
	assert.Equal(t, model.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "Hi there", msgs[2].Content)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "test-model", req.Model)
	assert.True(t, req.Stream)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Content)
	assert.Equal(t, "hello", req.Messages[1].Content)
}

func TestRun_ProtocolErrorAppendsNothing(t *testing.T) {
	client := &scriptedClient{respond: replyWith(
		cloud.DeltaEvent("Par"),
		cloud.ErrorEvent(&cloud.Error{Kind: cloud.KindProtocol, Detail: "{bad"}),
	)}
	r := &recordingRenderer{}
	loop := newLoop(client, lines("hi", "exit"), r)

	require.NoError(t, loop.Run(context.Background()))

	assert.Equal(t, []string{"Par"}, r.increments)
	assert.Empty(t, r.completed)
	require.Len(t, r.errs, 1)
	kind, ok := cloud.KindOf(r.errs[0])
	require.True(t, ok)
	assert.Equal(t, cloud.KindProtocol, kind)

	msgs := loop.Conversation().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[1].Role)
}

func TestRun_FailedTurnIsNotResent(t *testing.T) {
	calls := 0
	client := &scriptedClient{}
	client.respond = func(ctx context.Context, events chan<- cloud.StreamEvent) {
		calls++
		if calls == 1 {
			replyWith(cloud.ErrorEvent(&cloud.Error{Kind: cloud.KindTransport, Detail: "boom"}))(ctx, events)
			return
		}
		replyWith(cloud.DeltaEvent("ok"), cloud.EndEvent())(ctx, events)
	}
	loop := newLoop(client, lines("first", "second", "exit"), &recordingRenderer{})

	require.NoError(t, loop.Run(context.Background()))

	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages
	require.Len(t, second, 3)
	assert.Equal(t, "first", second[1].Content)
	assert.Equal(t, "second", second[2].Content)
	assert.Equal(t, 4, loop.Conversation().Len())
}

func TestRun_InterruptCancelsTurn(t *testing.T) {
	interrupts := make(chan os.Signal, 1)
	client := &scriptedClient{respond: func(ctx context.Context, events chan<- cloud.StreamEvent) {
		select {
		case events <- cloud.DeltaEvent("Par"):
		case <-ctx.Done():
			return
		}
		<-ctx.Done()
	}}
	r := &recordingRenderer{onIncrement: func(string) { interrupts <- os.Interrupt }}
	loop := New(Options{
		Client:     client,
		Input:      lines("tell me a story", "exit"),
		Renderer:   r,
		Interrupts: interrupts,
	})

	require.NoError(t, loop.Run(context.Background()))

	require.Len(t, r.errs, 1)
	assert.True(t, cloud.IsCancelled(r.errs[0]))
	assert.Empty(t, r.completed)
	assert.Equal(t, 2, loop.Conversation().Len())
}

func TestRun_StaleInterruptIgnored(t *testing.T) {
	interrupts := make(chan os.Signal, 1)
	interrupts <- os.Interrupt
	r := &recordingRenderer{}
	loop := New(Options{
		Client:     helloClient(),
		Input:      lines("hello", "exit"),
		Renderer:   r,
		Interrupts: interrupts,
	})

	require.NoError(t, loop.Run(context.Background()))
	assert.Empty(t, r.errs)
	require.Len(t, r.completed, 1)
}

// =============================================================================
// UI UPDATES AND JOURNAL
// =============================================================================

func TestRun_AppliesUIUpdatesAtPrompt(t *testing.T) {
	updates := make(chan config.UIConfig, 2)
	updates <- config.UIConfig{Markdown: "bogus", WordWrap: 80, Style: "auto"}
	updates <- config.UIConfig{Markdown: "conversation", WordWrap: 100, Style: "dark"}

	r := &recordingRenderer{}
	loop := New(Options{Client: helloClient(), Input: lines("exit"), Renderer: r, UIUpdates: updates})

	require.NoError(t, loop.Run(context.Background()))
	require.Len(t, r.uis, 1)
	assert.Equal(t, render.UI{Markdown: render.ModeConversation, WordWrap: 100, Style: "dark"}, r.uis[0])
}

func TestRun_JournalsAppendedMessages(t *testing.T) {
	client := &scriptedClient{}
	calls := 0
	client.respond = func(ctx context.Context, events chan<- cloud.StreamEvent) {
		calls++
		if calls == 1 {
			replyWith(cloud.DeltaEvent("Hi"), cloud.EndEvent())(ctx, events)
			return
		}
		replyWith(cloud.DeltaEvent("Par"), cloud.ErrorEvent(&cloud.Error{Kind: cloud.KindTransport}))(ctx, events)
	}
	journal := &memoryJournal{}
	loop := New(Options{
		Client:       client,
		Input:        lines("hello", "again", "exit"),
		Renderer:     &recordingRenderer{},
		Journal:      journal,
		SystemPrompt: "system",
	})

	require.NoError(t, loop.Run(context.Background()))

	var got []string
	for _, m := range journal.msgs {
		got = append(got, string(m.Role)+":"+m.Content)
	}
	assert.Equal(t, []string{"system:system", "user:hello", "assistant:Hi", "user:again"}, got)
}

func TestRun_JournalFailureDoesNotEndTurn(t *testing.T) {
	r := &recordingRenderer{}
	loop := New(Options{
		Client:   helloClient(),
		Input:    lines("hello", "exit"),
		Renderer: r,
		Journal:  &memoryJournal{fail: true},
	})

	require.NoError(t, loop.Run(context.Background()))
	require.Len(t, r.completed, 1)
	assert.Empty(t, r.errs)
}

func TestNew_DefaultSystemPrompt(t *testing.T) {
	loop := New(Options{Client: helloClient(), Input: lines(), Renderer: &recordingRenderer{}})
	assert.Equal(t, model.DefaultSystemPrompt, loop.Conversation().System().Content)
	assert.Equal(t, StateAwaitingInput, loop.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "awaiting_input", StateAwaitingInput.String())
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.Equal(t, "exited", StateExited.String())
	assert.Equal(t, "unknown", State(99).String())
}
