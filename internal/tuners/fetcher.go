// Package tuners fetches suggested follow-up prompts after a completed turn.
// Suggestions are an enhancement: failures are logged, never returned.
package tuners

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"

	"recipe-chat/internal/history"
	"recipe-chat/internal/logger"
)

// DefaultMax is the number of suggestions kept from one response.
const DefaultMax = 8

// Client issues the secondary tuner request.
type Client interface {
	FetchTuners(ctx context.Context, hist []history.Entry, previous []string) (string, error)
}

// Fetcher turns the backend's comma separated text into suggestions.
type Fetcher struct {
	client Client
	limit  int
	log    *log.Logger
}

// NewFetcher creates a fetcher keeping at most limit suggestions (DefaultMax
// when limit <= 0). A nil logger uses the "tuners" component logger.
func NewFetcher(client Client, limit int, l *log.Logger) *Fetcher {
	if limit <= 0 {
		limit = DefaultMax
	}
	if l == nil {
		l = logger.For("tuners")
	}
	return &Fetcher{
		client: client,
		limit:  limit,
		log:    l,
	}
}

// Fetch returns the suggestions for the finalized history, or nil when the
// request fails. An empty, non-nil result means the backend had none.
func (f *Fetcher) Fetch(ctx context.Context, hist []history.Entry, previous []string) []string {
	text, err := f.client.FetchTuners(ctx, hist, previous)
	if err != nil {
		f.log.Warn("tuner fetch failed", "error", err)
		return nil
	}

	suggestions := Parse(text, f.limit)
	f.log.Debug("tuners fetched", "count", len(suggestions))
	return suggestions
}

// Parse splits text on commas, trims each suggestion, drops empty ones and
// keeps at most limit. The result is never nil.
func Parse(text string, limit int) []string {
	suggestions := []string{}
	for _, part := range strings.Split(text, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		suggestions = append(suggestions, part)
		if len(suggestions) == limit {
			break
		}
	}
	return suggestions
}
