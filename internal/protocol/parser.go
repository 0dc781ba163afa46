package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"recipe-chat/internal/history"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// Parser turns arbitrarily split chunks into frames. A line is only parsed
// once its terminating newline has arrived; the trailing fragment waits in
// pendingBuffer for the next chunk.
//
// The zero value is ready to use. A Parser is not safe for concurrent use.
type Parser struct {
	pendingBuffer string
	done          bool
}

// Done reports whether a StreamEnd or ErrorFrame has been produced.
func (p *Parser) Done() bool {
	return p.done
}

// Pending returns the buffered, not yet terminated fragment.
func (p *Parser) Pending() string {
	return p.pendingBuffer
}

// Feed appends chunk to the buffer and returns the frames of every line
// completed by it. After the parser is done Feed returns nil.
func (p *Parser) Feed(chunk []byte) []Frame {
	if p.done {
		return nil
	}

	p.pendingBuffer += string(chunk)
	lines := strings.Split(p.pendingBuffer, "\n")
	p.pendingBuffer = lines[len(lines)-1]

	var frames []Frame
	for _, line := range lines[:len(lines)-1] {
		frames = append(frames, p.parseLine(line)...)
		if p.done {
			p.pendingBuffer = ""
			break
		}
	}
	return frames
}

// Finish processes whatever is left in the buffer at end of stream, so a
// final record without a trailing newline is not lost.
func (p *Parser) Finish() []Frame {
	if p.done {
		return nil
	}
	rest := p.pendingBuffer
	p.pendingBuffer = ""
	if strings.TrimSpace(rest) == "" {
		return nil
	}
	return p.parseLine(rest)
}

func (p *Parser) parseLine(line string) []Frame {
	line = strings.TrimSuffix(line, "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		// comments and keep-alives
		return nil
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == doneSentinel {
		p.done = true
		return []Frame{StreamEnd{}}
	}

	if !gjson.Valid(payload) {
		return p.fail("malformed frame: %q", truncate(payload, 120))
	}
	record := gjson.Parse(payload)
	if !record.IsObject() {
		return p.fail("frame is not an object: %q", truncate(payload, 120))
	}

	if e := record.Get("error"); present(e) {
		msg := e.String()
		if m := e.Get("message"); e.IsObject() && present(m) {
			msg = m.String()
		}
		return p.fail("backend error: %s", msg)
	}

	var frames []Frame
	if text := record.Get("delta.text"); present(text) {
		frames = append(frames, TextDelta{Text: text.String()})
	}

	if h := record.Get("new_chat_history"); present(h) {
		var entries []history.Entry
		if err := json.Unmarshal([]byte(h.Raw), &entries); err != nil {
			return p.fail("invalid new_chat_history: %v", err)
		}
		frames = append(frames, HistoryUpdate{History: entries})
	}

	if fc := record.Get("fn_calls"); present(fc) {
		calls, err := decodeCalls(fc)
		if err != nil {
			return p.fail("invalid fn_calls: %v", err)
		}
		frames = append(frames, FunctionCallsUpdate{Calls: calls})
	}

	return frames
}

func (p *Parser) fail(format string, args ...any) []Frame {
	p.done = true
	return []Frame{ErrorFrame{Message: fmt.Sprintf(format, args...)}}
}

// decodeCalls accepts either a single {user_prompt, fn_calls} object or an
// array of them.
func decodeCalls(r gjson.Result) ([]history.PromptFunctionCalls, error) {
	switch {
	case r.IsArray():
		var calls []history.PromptFunctionCalls
		if err := json.Unmarshal([]byte(r.Raw), &calls); err != nil {
			return nil, err
		}
		return calls, nil
	case r.IsObject():
		var call history.PromptFunctionCalls
		if err := json.Unmarshal([]byte(r.Raw), &call); err != nil {
			return nil, err
		}
		return []history.PromptFunctionCalls{call}, nil
	default:
		return nil, fmt.Errorf("unexpected %s value", r.Type)
	}
}

func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
