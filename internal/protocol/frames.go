// Package protocol decodes the chunked, newline-delimited "data: " stream
// returned by the chat endpoint into typed frames.
package protocol

import "recipe-chat/internal/history"

// Frame is one decoded unit of the stream. The set of frame types is closed.
type Frame interface {
	frame()
}

// TextDelta carries the next piece of assistant text.
type TextDelta struct {
	Text string
}

// HistoryUpdate carries the complete replacement chat history for the turn.
type HistoryUpdate struct {
	History []history.Entry
}

// FunctionCallsUpdate carries the tool calls the backend made for the turn.
type FunctionCallsUpdate struct {
	Calls []history.PromptFunctionCalls
}

// StreamEnd marks the [DONE] sentinel.
type StreamEnd struct{}

// ErrorFrame is a fatal protocol failure: a malformed record or an explicit
// backend error. No frames follow it.
type ErrorFrame struct {
	Message string
}

func (TextDelta) frame()           {}
func (HistoryUpdate) frame()       {}
func (FunctionCallsUpdate) frame() {}
func (StreamEnd) frame()           {}
func (ErrorFrame) frame()          {}
