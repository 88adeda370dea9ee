package core

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/researchchat/config"
	"github.com/mohammad-safakhou/researchchat/internal/agent/telemetry"
	"github.com/mohammad-safakhou/researchchat/provider"
	anthropic_provider "github.com/mohammad-safakhou/researchchat/provider/anthropic"
	gemini_provider "github.com/mohammad-safakhou/researchchat/provider/gemini"
	openai_provider "github.com/mohammad-safakhou/researchchat/provider/openai"
	"github.com/mohammad-safakhou/researchchat/tools/web_search"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/cache"
)

// NewModel builds the model a routing alias points to.
func NewModel(ctx context.Context, cfg config.LLMConfig, alias string) (provider.Model, error) {
	resolved, err := cfg.Resolve(alias)
	if err != nil {
		return nil, err
	}
	p := resolved.Settings
	name := resolved.Model.APIName
	if name == "" {
		name = resolved.Alias
	}
	var (
		m    provider.Model
		merr error
	)
	switch provider.Client(p.Type) {
	case provider.OpenAI:
		var om *openai_provider.Model
		om, merr = openai_provider.New(p.APIKey, name, openai_provider.Options{
			BaseURL: p.BaseURL, MaxTokens: resolved.Model.MaxTokens, Temperature: resolved.Model.Temperature, Timeout: p.Timeout,
		})
		m = om
	case provider.Anthropic:
		var am *anthropic_provider.Model
		am, merr = anthropic_provider.New(p.APIKey, name, anthropic_provider.Options{
			BaseURL: p.BaseURL, MaxTokens: resolved.Model.MaxTokens, Temperature: resolved.Model.Temperature, Timeout: p.Timeout,
		})
		m = am
	case provider.Gemini:
		var gm *gemini_provider.Model
		gm, merr = gemini_provider.New(ctx, p.APIKey, name, gemini_provider.Options{
			BaseURL: p.BaseURL, MaxTokens: resolved.Model.MaxTokens, Temperature: resolved.Model.Temperature, Timeout: p.Timeout,
		})
		m = gm
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", p.Type)
	}
	if merr != nil {
		return nil, fmt.Errorf("%s/%s: %w", resolved.Provider, resolved.Alias, merr)
	}
	return m, nil
}

// NewSearcher builds the configured web searcher, wrapped in the Redis cache
// when enabled and a client is available.
func NewSearcher(cfg config.SearchConfig, rdb redis.UniversalClient) (web_search.WebSearcher, error) {
	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Provider), cfg.APIKey, cfg.BaseURL, cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("search provider %q: %w", cfg.Provider, err)
	}
	if cfg.Cache.Enabled && rdb != nil {
		return cache.New(searcher, rdb, cfg.Cache.TTL, log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)), nil
	}
	return searcher, nil
}

// NewResearcherFromConfig wires models, search and budgets from cfg. rdb and
// tel may be nil.
func NewResearcherFromConfig(ctx context.Context, cfg *config.Config, rdb redis.UniversalClient, tel *telemetry.Telemetry, opts ...Option) (*Researcher, error) {
	fast, err := NewModel(ctx, cfg.LLM, cfg.LLM.Routing.Fast)
	if err != nil {
		return nil, fmt.Errorf("fast model: %w", err)
	}
	deep, err := NewModel(ctx, cfg.LLM, cfg.LLM.Routing.Deep)
	if err != nil {
		log.Printf("[LLM] deep model unavailable, reports use the fast model: %v", err)
		deep = fast
	}
	searcher, err := NewSearcher(cfg.Search, rdb)
	if err != nil {
		return nil, err
	}
	base := []Option{WithLimits(cfg.Research.Limits), WithTelemetry(tel)}
	return NewResearcher(fast, deep, searcher, append(base, opts...)...), nil
}
