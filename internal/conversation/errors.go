package conversation

import (
	"errors"
	"fmt"
)

// FailureText is the single message shown when a send fails.
const FailureText = "Sorry, something went wrong while preparing your answer. Please try again."

var (
	// ErrEmptyPrompt rejects blank input. The Store swallows it.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrTabBusy is returned when a tab already has a send in flight.
	ErrTabBusy = errors.New("tab already has a message in flight")
	// ErrUnknownTab is returned for ids that were never created.
	ErrUnknownTab = errors.New("unknown tab")
	// ErrStreamIncomplete is returned when the body ends before [DONE].
	ErrStreamIncomplete = errors.New("stream ended before completion")
)

// TransportError is a network or HTTP failure opening or reading the stream,
// including cancellation and timeouts.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a malformed frame or an explicit backend error.
type ProtocolError struct {
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Message)
}
