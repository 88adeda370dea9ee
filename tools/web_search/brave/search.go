package brave

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/researchchat/internal/helpers"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
	"github.com/mohammad-safakhou/researchchat/utils"
)

const defaultBaseURL = "https://api.search.brave.com"

// Search calls the Brave web search API. Advanced depth asks for extra
// snippets, which are appended to the main description.
type Search struct {
	APIKey  string
	BaseURL string
	HTTP    *utils.HTTPClient
}

func New(apiKey, baseURL string, client *utils.HTTPClient) *Search {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Search{APIKey: apiKey, BaseURL: strings.TrimRight(baseURL, "/"), HTTP: client}
}

func (s *Search) Name() string { return "brave" }

func (s *Search) Search(ctx context.Context, q string, opts models.Options) (models.Response, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return models.Response{}, errors.New("brave: API key is missing")
	}
	// https://api.search.brave.com/app/documentation/web-search
	params := url.Values{}
	params.Set("q", q)
	if opts.MaxResults > 0 {
		params.Set("count", strconv.Itoa(opts.MaxResults))
	}
	if opts.Depth == "advanced" {
		params.Set("extra_snippets", "true")
	}
	headers := map[string]string{"X-Subscription-Token": s.APIKey}

	var raw struct {
		Web struct {
			Results []struct {
				Title         string   `json:"title"`
				URL           string   `json:"url"`
				Description   string   `json:"description"`
				ExtraSnippets []string `json:"extra_snippets"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := s.HTTP.DoJSON(ctx, http.MethodGet, s.BaseURL+"/res/v1/web/search?"+params.Encode(), headers, nil, &raw); err != nil {
		return models.Response{}, fmt.Errorf("brave: %w", err)
	}

	out := models.Response{Query: q}
	for _, r := range raw.Web.Results {
		if opts.MaxResults > 0 && len(out.Results) >= opts.MaxResults {
			break
		}
		snippet := r.Description
		if len(r.ExtraSnippets) > 0 {
			snippet += " " + strings.Join(r.ExtraSnippets, " ")
		}
		out.Results = append(out.Results, models.Result{
			URL:     strings.TrimSpace(r.URL),
			Title:   helpers.PlainText(r.Title),
			Snippet: helpers.PlainText(snippet),
		})
	}
	return out, nil
}
