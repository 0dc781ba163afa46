package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recipe-chat/internal/conversation"
	"recipe-chat/internal/history"
)

func user(id, text string) conversation.Message {
	return conversation.Message{ID: id, Speaker: conversation.SpeakerUser, Text: text, Timestamp: "09:30"}
}

func assistant(id, text string, pending bool) conversation.Message {
	return conversation.Message{ID: id, Speaker: conversation.SpeakerAssistant, Text: text, Timestamp: "09:30", Pending: pending}
}

func tabWith(id int, msgs ...conversation.Message) conversation.Tab {
	return conversation.Tab{ID: id, Messages: msgs}
}

func newTestDisplay(render bool) (*Display, *bytes.Buffer) {
	var buf bytes.Buffer
	d := NewDisplay(&buf, render)
	d.Follow(conversation.Tab{ID: 0})
	buf.Reset()
	return d, &buf
}

func TestDisplay_StreamsDeltas(t *testing.T) {
	d, buf := newTestDisplay(false)

	d.Observe(tabWith(0, user("m1", "omelette?"), assistant("m2", "", true)))
	d.Observe(tabWith(0, user("m1", "omelette?"), assistant("m2", "Mix ", true)))
	d.Observe(tabWith(0, user("m1", "omelette?"), assistant("m2", "Mix eggs", true)))
	d.Observe(tabWith(0, user("m1", "omelette?"), assistant("m2", "Mix eggs", false)))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "omelette?"))
	assert.Equal(t, 1, strings.Count(out, "Mix eggs"), "unchanged answers are not repeated")
	assert.Contains(t, out, "┌─ You · 09:30")
	assert.Contains(t, out, "┌─ Assistant · 09:30")
	assert.Contains(t, out, "└ 09:30")
	assert.NotContains(t, out, "Answer")
}

func TestDisplay_ShowsExtractedAnswer(t *testing.T) {
	d, buf := newTestDisplay(false)

	raw := "<thinking>pan</thinking><result>Use 2 eggs</result>"
	d.Observe(tabWith(0, user("m1", "eggs?"), assistant("m2", raw, true)))
	d.Observe(tabWith(0, user("m1", "eggs?"), assistant("m2", "Use 2 eggs", false)))

	out := buf.String()
	assert.Contains(t, out, raw)
	assert.Contains(t, out, "─── Answer ───")
	assert.Contains(t, out, "│ Use 2 eggs")
}

func TestDisplay_RendersMarkdown(t *testing.T) {
	d, buf := newTestDisplay(true)
	require.NotNil(t, d.renderer)

	d.Observe(tabWith(0, assistant("m2", "**Whisk** well", true)))
	d.Observe(tabWith(0, assistant("m2", "**Whisk** well", false)))

	out := buf.String()
	assert.Contains(t, out, "─── Answer ───")
	assert.Contains(t, out, "Whisk")
}

func TestDisplay_InterruptedStream(t *testing.T) {
	d, buf := newTestDisplay(false)

	d.Observe(tabWith(0, user("m1", "roast?"), assistant("m2", "Half an ans", true)))
	d.Observe(tabWith(0, user("m1", "roast?"), conversation.Message{
		ID: "m3", Speaker: conversation.SpeakerSystem, Text: conversation.FailureText, Timestamp: "09:31",
	}))

	out := buf.String()
	interrupted := strings.Index(out, "(interrupted)")
	failure := strings.Index(out, conversation.FailureText)
	require.NotEqual(t, -1, interrupted)
	require.NotEqual(t, -1, failure)
	assert.Less(t, interrupted, failure)
}

func TestDisplay_FollowsOneTab(t *testing.T) {
	d, buf := newTestDisplay(false)

	d.Observe(tabWith(1, user("x1", "other tab")))
	assert.Empty(t, buf.String())

	d.Follow(tabWith(1, user("x1", "other tab"), assistant("x2", "done", false)))
	out := buf.String()
	assert.Contains(t, out, "Tab 1")
	assert.Contains(t, out, "other tab")
	assert.Contains(t, out, "│ done")

	buf.Reset()
	d.Observe(tabWith(1, user("x1", "other tab"), assistant("x2", "done", false)))
	assert.Empty(t, buf.String(), "replayed messages are not printed twice")
}

func TestDisplay_PrintTuners(t *testing.T) {
	d, buf := newTestDisplay(false)

	d.PrintTuners([]string{"make it vegan", "fewer steps"})
	assert.Contains(t, buf.String(), "1. make it vegan")
	assert.Contains(t, buf.String(), "2. fewer steps")

	buf.Reset()
	d.PrintTuners([]string{})
	assert.Empty(t, buf.String())

	d.PrintTuners(nil)
	assert.Contains(t, buf.String(), "no suggestions available")
}

func TestDisplay_PrintTabs(t *testing.T) {
	d, buf := newTestDisplay(false)
	tabs := []conversation.Tab{tabWith(0, user("m1", "a")), tabWith(1)}

	d.PrintTabs(tabs, 1, func(id int) conversation.Status {
		if id == 0 {
			return conversation.StatusStreaming
		}
		return conversation.StatusIdle
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "1 messages")
	assert.Contains(t, lines[0], string(conversation.StatusStreaming))
	assert.True(t, strings.HasPrefix(lines[1], "* 1"))
}

func TestDisplay_PrintJSON(t *testing.T) {
	d, buf := newTestDisplay(false)

	hist := []history.Entry{{Role: history.RoleUser, Content: []history.ContentBlock{history.Text{Text: "hi"}}}}
	require.NoError(t, d.PrintJSON("history", hist))

	out := buf.String()
	assert.Contains(t, out, "history")
	assert.Contains(t, out, `"role": "user"`)
	assert.Contains(t, out, `"text": "hi"`)
}
