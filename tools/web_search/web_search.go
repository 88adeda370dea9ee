package web_search

import (
	"context"
	"errors"
	"time"

	"github.com/mohammad-safakhou/researchchat/tools/web_search/brave"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/serper"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/tavily"
	"github.com/mohammad-safakhou/researchchat/utils"
)

// Options tune a single search call.
type Options = models.Options

// WebSearcher runs one web search. Implementations must be safe for
// concurrent use and must not retry on their own beyond transport-level
// transient failures the HTTP client is configured for.
type WebSearcher interface {
	Name() string
	Search(ctx context.Context, query string, opts Options) (models.Response, error)
}

type Provider string

const (
	TavilyProvider Provider = "tavily"
	SerperProvider Provider = "serper"
	BraveProvider  Provider = "brave"
)

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// NewWebSearcher builds the searcher for provider. baseURL may be empty to use
// the provider's public endpoint.
func NewWebSearcher(provider Provider, apiKey, baseURL string, timeout time.Duration) (WebSearcher, error) {
	client := utils.NewHTTPClient(timeout, 0, 0)
	switch provider {
	case TavilyProvider:
		return tavily.New(apiKey, baseURL, client), nil
	case SerperProvider:
		return serper.New(apiKey, baseURL, client), nil
	case BraveProvider:
		return brave.New(apiKey, baseURL, client), nil
	default:
		return nil, ErrUnsupportedProvider
	}
}
