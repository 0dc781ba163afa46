package ragclient

import "recipe-chat/internal/history"

// GenerationParams overrides the backend's generation defaults. Nil fields
// are left to the server.
type GenerationParams struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

// IsZero reports whether no parameter is set.
func (p *GenerationParams) IsZero() bool {
	return p == nil || (p.Temperature == nil && p.TopP == nil && p.TopK == nil && p.MaxTokens == nil)
}

// ChatRequest is the body of a streaming chat request.
type ChatRequest struct {
	Prompt              string            `json:"prompt"`
	ExistingChatHistory []history.Entry   `json:"existing_chat_history"`
	Config              *GenerationParams `json:"config,omitempty"`
}

// TunersRequest asks for follow-up prompt suggestions.
type TunersRequest struct {
	ExistingChatHistory []history.Entry   `json:"existing_chat_history"`
	PreviousTuners      []string          `json:"previous_tuners"`
	Config              *GenerationParams `json:"config,omitempty"`
}

// TunersResponse wraps the raw, comma separated suggestion text.
type TunersResponse struct {
	Data struct {
		LLMResponseText string `json:"llm_response_text"`
	} `json:"data"`
}
