// Package ragclient talks HTTP to the recipe assistant backend.
package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"recipe-chat/internal/history"
)

const maxErrorBody = 4 << 10

// ErrNoBody is returned when a successful stream response has no body.
var ErrNoBody = errors.New("response has no body")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

// Options configures a Client.
type Options struct {
	ChatEndpoint   string
	TunerEndpoint  string
	HealthEndpoint string
	APIKey         string
	Timeout        time.Duration // tuner and health requests
	StreamTimeout  time.Duration // whole stream, including reading the body
	Params         *GenerationParams
}

// Client handles communication with the chat and tuner endpoints
type Client struct {
	chatEndpoint    string
	tunerEndpoint   string
	healthEndpoint  string
	apiKey          string
	params          *GenerationParams
	httpClient      *http.Client
	streamingClient *http.Client
}

// NewClient creates a new backend client
func NewClient(opts Options) *Client {
	params := opts.Params
	if params.IsZero() {
		params = nil
	}
	return &Client{
		chatEndpoint:   opts.ChatEndpoint,
		tunerEndpoint:  opts.TunerEndpoint,
		healthEndpoint: opts.HealthEndpoint,
		apiKey:         opts.APIKey,
		params:         params,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		streamingClient: &http.Client{
			Timeout: opts.StreamTimeout,
		},
	}
}

// OpenStream posts the prompt with the existing history to
// {chatEndpoint}/stream and returns the response body for frame parsing.
// The caller must close it.
func (c *Client) OpenStream(ctx context.Context, prompt string, hist []history.Entry) (io.ReadCloser, error) {
	if hist == nil {
		hist = []history.Entry{}
	}

	streamURL, err := url.JoinPath(c.chatEndpoint, "stream")
	if err != nil {
		return nil, fmt.Errorf("invalid chat endpoint: %w", err)
	}
	u, err := url.Parse(streamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid chat endpoint: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	jsonData, err := json.Marshal(ChatRequest{
		Prompt:              prompt,
		ExistingChatHistory: hist,
		Config:              c.params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamingClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}

	return resp.Body, nil
}

// FetchTuners posts the finalized history and the previous suggestions to
// the tuner endpoint and returns the raw suggestion text.
func (c *Client) FetchTuners(ctx context.Context, hist []history.Entry, previous []string) (string, error) {
	if hist == nil {
		hist = []history.Entry{}
	}
	if previous == nil {
		previous = []string{}
	}

	jsonData, err := json.Marshal(TunersRequest{
		ExistingChatHistory: hist,
		PreviousTuners:      previous,
		Config:              c.params,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tunerEndpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp)
	}

	var tunersResp TunersResponse
	if err := json.NewDecoder(resp.Body).Decode(&tunersResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	return tunersResp.Data.LLMResponseText, nil
}

// HealthCheck verifies that the backend is reachable. It is a no-op when no
// health endpoint is configured.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.healthEndpoint == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.healthEndpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend is unreachable at %s: %w", c.healthEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	return nil
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}
