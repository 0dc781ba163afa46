// Package history holds the structured conversation context that the
// backend treats as authoritative and that is resent on every turn.
package history

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Role identifies the producer of a history entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Entry is a single turn of backend context.
type Entry struct {
	Role    Role
	Content []ContentBlock
}

// ContentBlock is a closed variant: Text, ToolInvocation or ToolResult.
type ContentBlock interface {
	blockType() string
}

// Text is plain model or user text.
type Text struct {
	Text string
}

// ToolInvocation is a tool call requested by the model. Arguments are kept
// as raw JSON so they are resent exactly as received.
type ToolInvocation struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// ToolResult is the output of a tool call, linked by ToolInvocationID.
type ToolResult struct {
	ToolInvocationID string
	Content          json.RawMessage
}

const (
	blockText       = "text"
	blockToolUse    = "tool_use"
	blockToolResult = "tool_result"
)

func (Text) blockType() string           { return blockText }
func (ToolInvocation) blockType() string { return blockToolUse }
func (ToolResult) blockType() string     { return blockToolResult }

// ContentText returns the result content as display text. String content is
// unquoted, anything else is returned as its JSON text.
func (r ToolResult) ContentText() string {
	var s string
	if err := json.Unmarshal(r.Content, &s); err == nil {
		return s
	}
	return string(r.Content)
}

// PromptFunctionCalls records the tool traffic of one turn for inspection.
type PromptFunctionCalls struct {
	Prompt string
	Calls  []ContentBlock
}

// Clone copies the entry slices so the result can be published without
// sharing backing arrays with the source.
func Clone(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = Entry{Role: e.Role, Content: slices.Clone(e.Content)}
	}
	return out
}

// CloneCalls is Clone for function-call log entries.
func CloneCalls(calls []PromptFunctionCalls) []PromptFunctionCalls {
	if calls == nil {
		return nil
	}
	out := make([]PromptFunctionCalls, len(calls))
	for i, c := range calls {
		out[i] = PromptFunctionCalls{Prompt: c.Prompt, Calls: slices.Clone(c.Calls)}
	}
	return out
}

type wireBlock struct {
	Type      string          `json:"type"`
	Text      *string         `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type wireEntry struct {
	Role    Role              `json:"role"`
	Content []json.RawMessage `json:"content"`
}

type wireCalls struct {
	UserPrompt string            `json:"user_prompt"`
	FnCalls    []json.RawMessage `json:"fn_calls"`
}

// MarshalBlock encodes a content block in the backend wire shape.
func MarshalBlock(b ContentBlock) ([]byte, error) {
	switch v := b.(type) {
	case Text:
		text := v.Text
		return json.Marshal(wireBlock{Type: blockText, Text: &text})
	case ToolInvocation:
		input := v.Arguments
		if len(input) == 0 {
			input = json.RawMessage(`{}`)
		}
		return json.Marshal(struct {
			Type  string          `json:"type"`
			ID    string          `json:"id"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		}{blockToolUse, v.ID, v.Name, input})
	case ToolResult:
		content := v.Content
		if len(content) == 0 {
			content = json.RawMessage(`""`)
		}
		return json.Marshal(struct {
			Type      string          `json:"type"`
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content"`
		}{blockToolResult, v.ToolInvocationID, content})
	case nil:
		return nil, fmt.Errorf("nil content block")
	default:
		return nil, fmt.Errorf("unsupported content block %T", b)
	}
}

// UnmarshalBlock decodes one wire content block. Unknown block types are an
// error rather than being passed through.
func UnmarshalBlock(data []byte) (ContentBlock, error) {
	var w wireBlock
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to decode content block: %w", err)
	}
	switch w.Type {
	case blockText:
		if w.Text == nil {
			return nil, fmt.Errorf("text block without text")
		}
		return Text{Text: *w.Text}, nil
	case blockToolUse:
		return ToolInvocation{ID: w.ID, Name: w.Name, Arguments: w.Input}, nil
	case blockToolResult:
		return ToolResult{ToolInvocationID: w.ToolUseID, Content: w.Content}, nil
	default:
		return nil, fmt.Errorf("unknown content block type %q", w.Type)
	}
}

func marshalBlocks(blocks []ContentBlock) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(blocks))
	for _, b := range blocks {
		data, err := MarshalBlock(b)
		if err != nil {
			return nil, err
		}
		out = append(out, data)
	}
	return out, nil
}

func unmarshalBlocks(raw []json.RawMessage) ([]ContentBlock, error) {
	out := make([]ContentBlock, 0, len(raw))
	for _, r := range raw {
		b, err := UnmarshalBlock(r)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// MarshalJSON implements json.Marshaler.
func (e Entry) MarshalJSON() ([]byte, error) {
	content, err := marshalBlocks(e.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEntry{Role: e.Role, Content: content})
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var w wireEntry
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if !w.Role.Valid() {
		return fmt.Errorf("unknown history role %q", w.Role)
	}
	content, err := unmarshalBlocks(w.Content)
	if err != nil {
		return err
	}
	e.Role = w.Role
	e.Content = content
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p PromptFunctionCalls) MarshalJSON() ([]byte, error) {
	calls, err := marshalBlocks(p.Calls)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireCalls{UserPrompt: p.Prompt, FnCalls: calls})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PromptFunctionCalls) UnmarshalJSON(data []byte) error {
	var w wireCalls
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	calls, err := unmarshalBlocks(w.FnCalls)
	if err != nil {
		return err
	}
	p.Prompt = w.UserPrompt
	p.Calls = calls
	return nil
}
