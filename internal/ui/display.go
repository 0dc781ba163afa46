// Package ui renders conversation tabs to a line-oriented terminal. The
// display follows one tab and turns its published snapshots into streamed
// output.
package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"recipe-chat/internal/conversation"
)

const defaultWidth = 80

type styles struct {
	title     lipgloss.Style
	frame     lipgloss.Style
	prompt    lipgloss.Style
	system    lipgloss.Style
	info      lipgloss.Style
	warning   lipgloss.Style
	err       lipgloss.Style
	success   lipgloss.Style
	tuner     lipgloss.Style
	activeTab lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("36")),
		frame:     r.NewStyle().Foreground(lipgloss.Color("245")),
		prompt:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		system:    r.NewStyle().Foreground(lipgloss.Color("214")),
		info:      r.NewStyle().Foreground(lipgloss.Color("39")),
		warning:   r.NewStyle().Foreground(lipgloss.Color("214")),
		err:       r.NewStyle().Foreground(lipgloss.Color("196")),
		success:   r.NewStyle().Foreground(lipgloss.Color("42")),
		tuner:     r.NewStyle().Foreground(lipgloss.Color("141")),
		activeTab: r.NewStyle().Bold(true),
	}
}

// Display writes the followed tab's transcript to out. Observe may be called
// from any goroutine.
type Display struct {
	mu       sync.Mutex
	out      io.Writer
	width    int
	renderer *glamour.TermRenderer
	st       styles

	follow   int
	shown    map[string]bool
	streamed map[string]string // pending message id -> raw text already written
}

// NewDisplay creates a display writing to out. With render set, finalized
// assistant answers are rendered as markdown.
func NewDisplay(out io.Writer, render bool) *Display {
	width := terminalWidth(out)

	d := &Display{
		out:      out,
		width:    width,
		st:       newStyles(lipgloss.NewRenderer(out)),
		shown:    make(map[string]bool),
		streamed: make(map[string]string),
	}

	if render {
		style := glamour.WithStandardStyle("notty")
		if isTerminal(out) {
			style = glamour.WithAutoStyle()
		}
		renderer, err := glamour.NewTermRenderer(
			style,
			glamour.WithWordWrap(max(width-10, 20)),
		)
		if err == nil {
			d.renderer = renderer
		}
	}
	return d
}

// Follow switches the display to tab and replays its transcript.
func (d *Display) Follow(tab conversation.Tab) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.follow = tab.ID
	d.shown = make(map[string]bool)
	d.streamed = make(map[string]string)

	fmt.Fprintf(d.out, "\n%s\n", d.st.title.Render(fmt.Sprintf("── Tab %d ──", tab.ID)))
	d.observe(tab)
}

// Observe renders what changed in tab since the last snapshot. Snapshots of
// tabs other than the followed one are ignored.
func (d *Display) Observe(tab conversation.Tab) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if tab.ID != d.follow {
		return
	}
	d.observe(tab)
}

func (d *Display) observe(tab conversation.Tab) {
	present := make(map[string]bool, len(tab.Messages))
	for _, m := range tab.Messages {
		present[m.ID] = true
	}
	for id := range d.streamed {
		if !present[id] {
			d.abortStream()
			delete(d.streamed, id)
		}
	}

	for _, m := range tab.Messages {
		if d.shown[m.ID] {
			continue
		}
		if m.Pending {
			d.streamMessage(m)
			continue
		}
		if raw, ok := d.streamed[m.ID]; ok {
			d.finishMessage(m, raw)
			delete(d.streamed, m.ID)
		} else {
			d.printMessage(m)
		}
		d.shown[m.ID] = true
	}
}

func (d *Display) streamMessage(m conversation.Message) {
	printed, ok := d.streamed[m.ID]
	if !ok {
		fmt.Fprintf(d.out, "\n%s\n%s", d.st.frame.Render("┌─ Assistant · "+m.Timestamp), d.st.frame.Render("│ "))
	}
	if strings.HasPrefix(m.Text, printed) {
		fmt.Fprint(d.out, m.Text[len(printed):])
	}
	d.streamed[m.ID] = m.Text
}

func (d *Display) finishMessage(m conversation.Message, raw string) {
	fmt.Fprintln(d.out)
	if d.renderer != nil || m.Text != raw {
		fmt.Fprintln(d.out, d.st.frame.Render("│ ─── Answer ───"))
		d.writeBody(m.Text)
	}
	fmt.Fprintln(d.out, d.st.frame.Render("└ "+m.Timestamp))
}

func (d *Display) abortStream() {
	fmt.Fprintln(d.out)
	fmt.Fprintln(d.out, d.st.frame.Render("└ (interrupted)"))
}

func (d *Display) printMessage(m conversation.Message) {
	switch m.Speaker {
	case conversation.SpeakerUser:
		fmt.Fprintf(d.out, "\n%s\n", d.st.frame.Render("┌─ You · "+m.Timestamp))
		d.writeLines(m.Text)
		fmt.Fprintln(d.out, d.st.frame.Render("└"))
	case conversation.SpeakerAssistant:
		fmt.Fprintf(d.out, "\n%s\n", d.st.frame.Render("┌─ Assistant · "+m.Timestamp))
		d.writeBody(m.Text)
		fmt.Fprintln(d.out, d.st.frame.Render("└"))
	default:
		fmt.Fprintf(d.out, "%s\n", d.st.system.Render("⚠ "+m.Text))
	}
}

// writeBody writes an answer, rendered as markdown when enabled.
func (d *Display) writeBody(text string) {
	if d.renderer != nil {
		if rendered, err := d.renderer.Render(text); err == nil {
			text = strings.Trim(rendered, "\n")
		}
	}
	d.writeLines(text)
}

func (d *Display) writeLines(text string) {
	for _, line := range strings.Split(text, "\n") {
		fmt.Fprintf(d.out, "%s %s\n", d.st.frame.Render("│"), line)
	}
}

// PrintWelcome displays the banner and the command summary
func (d *Display) PrintWelcome(endpoint string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	banner := d.st.title.
		Border(lipgloss.RoundedBorder()).
		Padding(0, 2).
		Render("recipe-chat · recipe assistant")
	fmt.Fprintln(d.out, banner)
	fmt.Fprintf(d.out, "%s %s\n", d.st.frame.Render("Backend:"), endpoint)
	fmt.Fprintln(d.out, d.st.frame.Render("Type /help for commands, Ctrl+C cancels an answer."))
}

// PrintHelp lists the available commands
func (d *Display) PrintHelp() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, line := range []string{
		"/new          open a new tab",
		"/tab N        switch to tab N",
		"/tabs         list tabs",
		"/t N          send suggestion N",
		"/history      show the chat history sent to the backend",
		"/calls        show the function call log",
		"/clear        clear the screen",
		"/exit         quit",
	} {
		fmt.Fprintln(d.out, d.st.info.Render(line))
	}
}

// PrintPrompt displays the input prompt for the active tab
func (d *Display) PrintPrompt(tabID int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintf(d.out, "\n%s ", d.st.prompt.Render(fmt.Sprintf("[%d] ❯", tabID)))
}

// PrintTuners lists the current suggestions. nil means they could not be
// fetched.
func (d *Display) PrintTuners(tuners []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if tuners == nil {
		fmt.Fprintln(d.out, d.st.frame.Render("(no suggestions available)"))
		return
	}
	if len(tuners) == 0 {
		return
	}
	fmt.Fprintln(d.out, d.st.frame.Render("Try next:"))
	for i, t := range tuners {
		fmt.Fprintf(d.out, "  %s\n", d.st.tuner.Render(fmt.Sprintf("%d. %s", i+1, t)))
	}
}

// PrintTabs lists every tab with its message count and status.
func (d *Display) PrintTabs(tabs []conversation.Tab, active int, status func(int) conversation.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, t := range tabs {
		line := fmt.Sprintf("  %d  %d messages  %s", t.ID, len(t.Messages), status(t.ID))
		if t.ID == active {
			line = d.st.activeTab.Render("* " + strings.TrimPrefix(line, "  "))
		}
		fmt.Fprintln(d.out, line)
	}
}

// PrintJSON dumps v as indented JSON under a title.
func (d *Display) PrintJSON(title string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", title, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.out, d.st.title.Render(title))
	fmt.Fprintln(d.out, string(data))
	return nil
}

// ClearScreen clears the terminal
func (d *Display) ClearScreen() {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprint(d.out, "\033[2J\033[H")
}

// PrintInfo displays info message
func (d *Display) PrintInfo(msg string) {
	d.printStyled(d.st.info, "ℹ "+msg)
}

// PrintWarning displays warning message
func (d *Display) PrintWarning(msg string) {
	d.printStyled(d.st.warning, "⚠ "+msg)
}

// PrintError displays error message
func (d *Display) PrintError(err error) {
	d.printStyled(d.st.err, "✗ Error: "+err.Error())
}

// PrintSuccess displays success message
func (d *Display) PrintSuccess(msg string) {
	d.printStyled(d.st.success, "✓ "+msg)
}

// PrintGoodbye displays goodbye message
func (d *Display) PrintGoodbye() {
	d.printStyled(d.st.title, "\nHappy cooking!")
}

func (d *Display) printStyled(style lipgloss.Style, msg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.out, style.Render(msg))
}

func isTerminal(out io.Writer) bool {
	f, ok := out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(out io.Writer) int {
	if !isTerminal(out) {
		return defaultWidth
	}
	width, _, err := term.GetSize(int(out.(*os.File).Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
