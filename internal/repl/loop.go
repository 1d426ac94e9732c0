// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package repl

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jeranaias/termline/internal/cloud"
	"github.com/jeranaias/termline/internal/config"
	"github.com/jeranaias/termline/internal/model"
	"github.com/jeranaias/termline/internal/render"
	"github.com/jeranaias/termline/internal/stream"
)

// ErrPromptAborted is returned by a LineReader when the user presses
// Ctrl-C at the prompt.
var ErrPromptAborted = errors.New("prompt aborted")

// =============================================================================
// COLLABORATORS
// =============================================================================

// Client sends a chat request and streams the reply.
type Client interface {
	Send(ctx context.Context, req cloud.ChatRequest) <-chan cloud.StreamEvent
	Model() string
}

// LineReader reads one line of input. It returns io.EOF at end of input
// and ErrPromptAborted when the prompt was interrupted.
type LineReader interface {
	Prompt(prompt string) (string, error)
}

// Renderer displays responses and diagnostics.
type Renderer interface {
	Prompt() string
	SetUI(ui render.UI)
	BeginTurn()
	OnIncrement(fragment string)
	OnComplete(final model.Message, history []model.Message)
	OnError(err error)
}

// Journal persists messages after they enter the conversation.
type Journal interface {
	Record(ctx context.Context, msg model.Message) error
}

// Options configures a Loop. Client, Input and Renderer are required.
type Options struct {
	Client   Client
	Input    LineReader
	Renderer Renderer

	// Journal is optional.
	Journal Journal

	// SystemPrompt seeds the conversation. Empty means the default prompt.
	SystemPrompt string

	// Interrupts cancel the turn in progress.
	Interrupts <-chan os.Signal

	// UIUpdates carry reloaded UI settings, applied at the next prompt.
	UIUpdates <-chan config.UIConfig

	Log logrus.FieldLogger
}

// =============================================================================
// LOOP
// =============================================================================

// Loop is the interactive chat loop.
type Loop struct {
	client     Client
	input      LineReader
	renderer   Renderer
	journal    Journal
	interrupts <-chan os.Signal
	uiUpdates  <-chan config.UIConfig
	log        logrus.FieldLogger

	store     *model.Conversation
	journaled int
	state     State
	turns     int
}

// New creates a loop with a fresh conversation.
func New(opts Options) *Loop {
	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = model.DefaultSystemPrompt
	}
	log := opts.Log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Loop{
		client:     opts.Client,
		input:      opts.Input,
		renderer:   opts.Renderer,
		journal:    opts.Journal,
		interrupts: opts.Interrupts,
		uiUpdates:  opts.UIUpdates,
		log:        log,
		store:      model.NewConversation(prompt),
	}
}

// Conversation returns the conversation owned by the loop.
func (l *Loop) Conversation() *model.Conversation {
	return l.store
}

// State returns the current state.
func (l *Loop) State() State {
	return l.state
}

func (l *Loop) setState(s State) {
	l.log.WithFields(logrus.Fields{"from": l.state, "to": s}).Trace("state change")
	l.state = s
}

// Run reads lines until the user exits or input ends. It returns nil on a
// normal exit and the context error if ctx is cancelled between turns.
// Turn failures are reported through the renderer and never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	l.log.WithField("model", l.client.Model()).Info("session started")
	defer func() {
		l.setState(StateExited)
		l.log.WithField("turns", l.turns).Info("session ended")
	}()

	for {
		l.setState(StateAwaitingInput)
		if err := ctx.Err(); err != nil {
			return err
		}
		l.applyUIUpdates()

		line, err := l.input.Prompt(l.renderer.Prompt())
		if err != nil {
			if errors.Is(err, ErrPromptAborted) {
				continue
			}
			if !errors.Is(err, io.EOF) {
				l.log.WithError(err).Warn("input failed")
			}
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isExitCommand(line) {
			return nil
		}

		l.turn(ctx, line)
	}
}

// applyUIUpdates takes any pending UI settings without blocking.
func (l *Loop) applyUIUpdates() {
	for {
		select {
		case ui := <-l.uiUpdates:
			mode, err := render.ParseMode(ui.Markdown)
			if err != nil {
				l.log.WithError(err).Warn("ignoring UI update")
				continue
			}
			l.renderer.SetUI(render.UI{Markdown: mode, WordWrap: ui.WordWrap, Style: ui.Style})
			l.log.WithField("markdown", mode).Debug("UI settings applied")
		default:
			return
		}
	}
}

// turn runs one request and response.
func (l *Loop) turn(ctx context.Context, input string) {
	l.turns++
	log := l.log.WithField("turn", l.turns)

	l.setState(StateSending)
	l.store.AppendUser(input)
	l.record(ctx)

	req := cloud.NewChatRequest(l.client.Model(), l.store.Messages())

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	l.drainInterrupts()
	stop := l.watchInterrupts(turnCtx, cancel)
	defer stop()

	l.renderer.BeginTurn()
	events := l.client.Send(turnCtx, req)

	l.setState(StateStreaming)
	asm := stream.NewAssembler(l.renderer, l.store)
	final, err := asm.Run(turnCtx, events)
	stats := asm.Stats()
	log = log.WithFields(logrus.Fields{
		"deltas":      stats.Deltas,
		"chars":       stats.Chars,
		"first_delta": stats.FirstDelta.Round(time.Millisecond),
		"duration":    stats.Total.Round(time.Millisecond),
	})

	if err != nil {
		l.setState(StateReporting)
		l.renderer.OnError(err)
		kind, _ := cloud.KindOf(err)
		entry := log.WithFields(logrus.Fields{"outcome": "failed", "kind": kind})
		if kind == cloud.KindCancelled {
			entry.WithField("outcome", "cancelled").Info("turn finished")
		} else {
			entry.WithError(err).Warn("turn finished")
		}
		return
	}

	l.setState(StateAppending)
	l.record(ctx)
	l.renderer.OnComplete(final, l.store.Messages())
	log.WithField("outcome", "completed").Info("turn finished")
}

// record journals every message not yet journaled. A failed write is logged
// and skipped.
func (l *Loop) record(ctx context.Context) {
	if l.journal == nil {
		return
	}
	msgs := l.store.Messages()
	for l.journaled < len(msgs) {
		if err := l.journal.Record(ctx, msgs[l.journaled]); err != nil {
			l.log.WithError(err).WithField("seq", l.journaled).Warn("journal write failed")
		}
		l.journaled++
	}
}

// drainInterrupts discards signals delivered while no turn was running.
func (l *Loop) drainInterrupts() {
	for {
		select {
		case <-l.interrupts:
		default:
			return
		}
	}
}

// watchInterrupts cancels the turn when an interrupt arrives. The returned
// function stops the watcher and waits for it to exit.
func (l *Loop) watchInterrupts(ctx context.Context, cancel context.CancelFunc) func() {
	if l.interrupts == nil {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		select {
		case <-l.interrupts:
			cancel()
		case <-ctx.Done():
		case <-done:
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
