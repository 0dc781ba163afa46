package conversation

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"recipe-chat/internal/extract"
	"recipe-chat/internal/history"
	"recipe-chat/internal/logger"
	"recipe-chat/internal/protocol"
)

const timestampLayout = "15:04"

// StreamOpener opens the response stream for one prompt.
type StreamOpener interface {
	OpenStream(ctx context.Context, prompt string, hist []history.Entry) (io.ReadCloser, error)
}

// TabHandle is the executor's access to the tab it is filling. Update
// applies fn to a private copy of the tab and publishes the result.
type TabHandle interface {
	Snapshot() Tab
	Update(fn func(*Tab))
	SetStatus(Status)
}

// Result is the outcome of a successful turn.
type Result struct {
	History []history.Entry
	Text    string
}

// Executor runs one request/response cycle against a tab.
type Executor struct {
	opener StreamOpener
	log    *log.Logger
	now    func() time.Time
	newID  func() string
}

// NewExecutor creates an executor. A nil logger uses the "stream" component
// logger.
func NewExecutor(opener StreamOpener, l *log.Logger) *Executor {
	if l == nil {
		l = logger.For("stream")
	}
	return &Executor{
		opener: opener,
		log:    l,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Execute appends the user message and a pending assistant message, streams
// the answer into the pending message and, on [DONE], finalizes it and
// commits the turn's history and function calls in one update. On any
// failure the pending message is replaced by a single system message and
// history and the function-call log are left untouched.
func (e *Executor) Execute(ctx context.Context, tab TabHandle, prompt string) (Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return Result{}, ErrEmptyPrompt
	}

	ts := e.timestamp()
	userMsg := Message{ID: e.newID(), Speaker: SpeakerUser, Text: prompt, Timestamp: ts}
	pendingID := e.newID()
	pending := Message{ID: pendingID, Speaker: SpeakerAssistant, Timestamp: ts, Pending: true}
	tab.Update(func(t *Tab) {
		t.Messages = append(t.Messages, userMsg, pending)
	})

	body, err := e.opener.OpenStream(ctx, prompt, tab.Snapshot().History)
	if err != nil {
		return e.fail(tab, pendingID, &TransportError{Err: err})
	}
	defer body.Close()
	tab.SetStatus(StatusStreaming)

	var (
		raw         strings.Builder
		newHistory  []history.Entry
		haveHistory bool
		calls       []history.ContentBlock
	)

	reader := protocol.NewReader(body)
	for {
		if err := ctx.Err(); err != nil {
			return e.fail(tab, pendingID, &TransportError{Err: err})
		}

		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return e.fail(tab, pendingID, &TransportError{Err: ErrStreamIncomplete})
		}
		if err != nil {
			return e.fail(tab, pendingID, &TransportError{Err: err})
		}

		switch f := frame.(type) {
		case protocol.TextDelta:
			raw.WriteString(f.Text)
			text, now := raw.String(), e.timestamp()
			tab.Update(func(t *Tab) {
				t.updateMessage(pendingID, func(m *Message) {
					m.Text = text
					m.Timestamp = now
				})
			})

		case protocol.HistoryUpdate:
			newHistory, haveHistory = f.History, true

		case protocol.FunctionCallsUpdate:
			for _, c := range f.Calls {
				calls = append(calls, c.Calls...)
			}

		case protocol.ErrorFrame:
			return e.fail(tab, pendingID, &ProtocolError{Message: f.Message})

		case protocol.StreamEnd:
			return e.commit(tab, pendingID, prompt, raw.String(), newHistory, haveHistory, calls)
		}
	}
}

func (e *Executor) commit(tab TabHandle, pendingID, prompt, raw string, newHistory []history.Entry, haveHistory bool, calls []history.ContentBlock) (Result, error) {
	text := extract.DisplayText(raw)
	now := e.timestamp()
	entry := history.PromptFunctionCalls{Prompt: prompt, Calls: calls}

	if !haveHistory {
		e.log.Warn("stream completed without chat history, keeping previous context")
	}

	var committed []history.Entry
	tab.Update(func(t *Tab) {
		t.updateMessage(pendingID, func(m *Message) {
			m.Text = text
			m.Timestamp = now
			m.Pending = false
		})
		if haveHistory {
			t.History = history.Clone(newHistory)
		}
		t.FunctionCallLog = append(t.FunctionCallLog, entry)
		committed = t.History
	})

	e.log.Debug("turn committed", "tab", tab.Snapshot().ID, "history", len(committed), "calls", len(calls))
	return Result{History: committed, Text: text}, nil
}

func (e *Executor) fail(tab TabHandle, pendingID string, err error) (Result, error) {
	e.log.Error("send failed", "tab", tab.Snapshot().ID, "error", err)

	sysMsg := Message{
		ID:        e.newID(),
		Speaker:   SpeakerSystem,
		Text:      FailureText,
		Timestamp: e.timestamp(),
	}
	tab.Update(func(t *Tab) {
		t.removeMessage(pendingID)
		t.Messages = append(t.Messages, sysMsg)
	})
	return Result{}, err
}

func (e *Executor) timestamp() string {
	return e.now().Format(timestampLayout)
}
