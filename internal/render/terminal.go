// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/jeranaias/termline/internal/cloud"
	"github.com/jeranaias/termline/internal/model"
	"github.com/jeranaias/termline/internal/stream"
)

// =============================================================================
// OPTIONS
// =============================================================================

// UI holds the settings that may change while the program runs.
type UI struct {
	Markdown Mode
	WordWrap int
	Style    string
}

// DefaultUI returns the default UI settings.
func DefaultUI() UI {
	return UI{Markdown: ModeReplace, WordWrap: 80, Style: StyleAuto}
}

// Options configures a Renderer.
type Options struct {
	UI UI

	// TTY reports whether stdout is a terminal. Markdown modes need one.
	TTY bool

	// Profile is the color profile for styles and escape sequences.
	Profile termenv.Profile

	// Size returns the terminal width and height.
	Size func() (width, height int)
}

// =============================================================================
// RENDERER
// =============================================================================

// Renderer prints one response at a time. It is used from the REPL
// goroutine only.
type Renderer struct {
	out    io.Writer
	errOut io.Writer
	term   *termenv.Output
	opts   Options
	md     *markdown

	// raw is the text printed for the current response.
	raw strings.Builder

	userHeading      lipgloss.Style
	assistantHeading lipgloss.Style
	errorStyle       lipgloss.Style
	warningStyle     lipgloss.Style
	noteStyle        lipgloss.Style
	titleStyle       lipgloss.Style
}

// New creates a renderer writing responses to out and diagnostics to errOut.
func New(out, errOut io.Writer, opts Options) *Renderer {
	if opts.Size == nil {
		opts.Size = func() (int, int) { return 80, 24 }
	}
	if opts.UI.Markdown == "" {
		opts.UI.Markdown = ModeReplace
	}

	lr := lipgloss.NewRenderer(out)
	lr.SetColorProfile(opts.Profile)

	r := &Renderer{
		out:    out,
		errOut: errOut,
		term:   termenv.NewOutput(out, termenv.WithProfile(opts.Profile)),
		opts:   opts,
		md:     newMarkdown(opts.UI.Style, opts.UI.WordWrap),

		userHeading:      lr.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		assistantHeading: lr.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
		errorStyle:       lr.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		warningStyle:     lr.NewStyle().Foreground(lipgloss.Color("3")),
		noteStyle:        lr.NewStyle().Faint(true),
		titleStyle:       lr.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
	}
	return r
}

// Mode returns the effective markdown mode. Without a TTY it is always off.
func (r *Renderer) Mode() Mode {
	if !r.opts.TTY {
		return ModeOff
	}
	return r.opts.UI.Markdown
}

// SetUI replaces the UI settings. Call it between responses.
func (r *Renderer) SetUI(ui UI) {
	if ui.Markdown == "" {
		ui.Markdown = ModeReplace
	}
	r.opts.UI = ui
	r.md = newMarkdown(ui.Style, ui.WordWrap)
}

// UI returns the current UI settings.
func (r *Renderer) UI() UI {
	return r.opts.UI
}

// Prompt returns the input prompt. It is left unstyled so the line editor
// can measure it.
func (r *Renderer) Prompt() string {
	return "> "
}

// Notice prints a dim informational line to the error writer.
func (r *Renderer) Notice(msg string) {
	fmt.Fprintln(r.errOut, r.noteStyle.Render(msg))
}

// Banner prints the startup banner.
func (r *Renderer) Banner(modelName string) {
	fmt.Fprintln(r.out, r.titleStyle.Render("Termline - Terminal Chat Assistant"))
	fmt.Fprintf(r.out, "Using model: %s\n", modelName)
	fmt.Fprintln(r.out, r.noteStyle.Render("Type 'exit' or ':q' to quit"))
	fmt.Fprintln(r.out)
}

// =============================================================================
// STREAM CALLBACKS
// =============================================================================

// BeginTurn resets per-response state.
func (r *Renderer) BeginTurn() {
	r.raw.Reset()
}

// OnIncrement writes a fragment immediately.
func (r *Renderer) OnIncrement(fragment string) {
	r.raw.WriteString(fragment)
	io.WriteString(r.out, fragment)
}

// OnComplete finishes a successful response. history is the conversation
// including final, used by ModeConversation.
func (r *Renderer) OnComplete(final model.Message, history []model.Message) {
	defer r.raw.Reset()

	switch r.Mode() {
	case ModeReplace:
		r.replace(final.Content)
	case ModeConversation:
		r.redraw(history)
	default:
		r.endRawLine()
		fmt.Fprintln(r.out)
	}
}

// replace erases the raw rows and prints the markdown rendering in their
// place. If the raw text has scrolled beyond the screen it cannot be
// erased, so the rendering is printed below it instead.
func (r *Renderer) replace(content string) {
	width, height := r.opts.Size()
	rendered, err := r.md.render(content, width)
	if err != nil {
		r.endRawLine()
		fmt.Fprintln(r.out)
		return
	}

	rows := rowCount(r.raw.String(), width)
	if height > 0 && rows >= height {
		r.endRawLine()
	} else {
		r.eraseRows(rows)
	}
	io.WriteString(r.out, rendered)
}

// eraseRows clears the current row and the rows-1 rows above it, leaving
// the cursor at the start of the topmost cleared row.
func (r *Renderer) eraseRows(rows int) {
	io.WriteString(r.out, "\r")
	r.term.ClearLine()
	for i := 1; i < rows; i++ {
		r.term.CursorUp(1)
		r.term.ClearLine()
	}
}

// redraw clears the screen and prints every user and assistant message.
func (r *Renderer) redraw(history []model.Message) {
	width, _ := r.opts.Size()
	r.term.ClearScreen()

	for _, msg := range history {
		var heading string
		switch msg.Role {
		case model.RoleUser:
			heading = r.userHeading.Render(string(msg.Role))
		case model.RoleAssistant:
			heading = r.assistantHeading.Render(string(msg.Role))
		default:
			continue
		}
		fmt.Fprintln(r.out, heading)

		rendered, err := r.md.render(msg.Content, width)
		if err != nil {
			rendered = msg.Content + "\n"
		}
		io.WriteString(r.out, rendered)
		fmt.Fprintln(r.out)
	}
}

// endRawLine moves to a fresh line if the raw output ended mid-line.
func (r *Renderer) endRawLine() {
	if raw := r.raw.String(); raw != "" && !strings.HasSuffix(raw, "\n") {
		fmt.Fprintln(r.out)
	}
}

// OnError reports a failed turn. Partial output stays on screen but is
// marked as discarded.
func (r *Renderer) OnError(err error) {
	defer r.raw.Reset()
	r.endRawLine()

	if cloud.IsCancelled(err) {
		r.OnCancelled()
		return
	}

	fmt.Fprintf(r.errOut, "%s %s\n", r.errorStyle.Render("[Error]"), describe(err))

	var streamErr *stream.StreamError
	if errors.As(err, &streamErr) && streamErr.Partial != "" {
		n := len([]rune(streamErr.Partial))
		fmt.Fprintln(r.errOut, r.noteStyle.Render(fmt.Sprintf("(%d characters of partial response discarded)", n)))
	}
}

// OnCancelled prints the note for an interrupted response.
func (r *Renderer) OnCancelled() {
	fmt.Fprintln(r.errOut, r.warningStyle.Render("[Cancelled] response interrupted; nothing was saved"))
}

// describe returns the user-facing text for a turn error.
func describe(err error) string {
	var apiErr *cloud.Error
	if !errors.As(err, &apiErr) {
		return err.Error()
	}
	switch apiErr.Kind {
	case cloud.KindAuth:
		return apiErr.Error() + " (check OPENAI_API_KEY)"
	default:
		return apiErr.Error()
	}
}
