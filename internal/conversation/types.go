package conversation

import (
	"slices"

	"recipe-chat/internal/history"
)

// Speaker identifies who a displayed message belongs to.
type Speaker string

const (
	SpeakerUser      Speaker = "User"
	SpeakerAssistant Speaker = "Assistant"
	SpeakerSystem    Speaker = "System"
)

// Message is one entry of a tab's visible transcript.
type Message struct {
	ID        string
	Speaker   Speaker
	Text      string
	Timestamp string
	// Pending marks the assistant message an in-flight stream is filling.
	Pending bool
}

// TunerState holds the follow-up suggestions of a tab. A nil Current means
// suggestions are being computed or are unavailable; an empty, non-nil
// Current means there are none. Previous is what was live before the last
// send started.
type TunerState struct {
	Current  []string
	Previous []string
}

// Tab is one independent conversation. Published Tab values are never
// modified; every change replaces the whole record, so a Tab obtained from
// the Store is a consistent snapshot and must be treated as read-only.
type Tab struct {
	ID              int
	Messages        []Message
	History         []history.Entry
	FunctionCallLog []history.PromptFunctionCalls
	Tuners          TunerState
}

// Pending returns the in-flight assistant message, if any.
func (t Tab) Pending() (Message, bool) {
	for _, m := range t.Messages {
		if m.Pending {
			return m, true
		}
	}
	return Message{}, false
}

func (t Tab) clone() Tab {
	return Tab{
		ID:              t.ID,
		Messages:        slices.Clone(t.Messages),
		History:         history.Clone(t.History),
		FunctionCallLog: history.CloneCalls(t.FunctionCallLog),
		Tuners: TunerState{
			Current:  slices.Clone(t.Tuners.Current),
			Previous: slices.Clone(t.Tuners.Previous),
		},
	}
}

func (t *Tab) updateMessage(id string, fn func(*Message)) bool {
	for i := range t.Messages {
		if t.Messages[i].ID == id {
			fn(&t.Messages[i])
			return true
		}
	}
	return false
}

func (t *Tab) removeMessage(id string) {
	t.Messages = slices.DeleteFunc(t.Messages, func(m Message) bool {
		return m.ID == id
	})
}

// Status is the send-cycle state of one tab.
type Status string

const (
	StatusIdle           Status = "idle"
	StatusSending        Status = "sending"
	StatusStreaming      Status = "streaming"
	StatusFinalized      Status = "finalized"
	StatusFetchingTuners Status = "fetching-tuners"
	StatusErrorRecovery  Status = "error-recovery"
)

// Loading reports whether the status blocks further input on the tab.
func (s Status) Loading() bool {
	return s == StatusSending || s == StatusStreaming
}
