package tavily

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/researchchat/internal/helpers"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
	"github.com/mohammad-safakhou/researchchat/utils"
)

const defaultBaseURL = "https://api.tavily.com"

// Search calls the Tavily search API. Tavily supports the basic/advanced depth
// switch natively and can attach images with descriptions.
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

func (s *Search) Name() string { return "tavily" }

type request struct {
	Query                    string `json:"query"`
	SearchDepth              string `json:"search_depth"`
	MaxResults               int    `json:"max_results"`
	IncludeImages            bool   `json:"include_images"`
	IncludeImageDescriptions bool   `json:"include_image_descriptions"`
}

type response struct {
	Query   string `json:"query"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
	Images []json.RawMessage `json:"images"`
}

func (s *Search) Search(ctx context.Context, q string, opts models.Options) (models.Response, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return models.Response{}, errors.New("tavily: API key is missing")
	}
	depth := opts.Depth
	if depth == "" {
		depth = "basic"
	}
	body := request{
		Query:                    q,
		SearchDepth:              depth,
		MaxResults:               opts.MaxResults,
		IncludeImages:            true,
		IncludeImageDescriptions: true,
	}
	headers := map[string]string{"Authorization": "Bearer " + s.APIKey}
	var raw response
	if err := s.HTTP.DoJSON(ctx, http.MethodPost, s.BaseURL+"/search", headers, body, &raw); err != nil {
		return models.Response{}, fmt.Errorf("tavily: %w", err)
	}

	out := models.Response{Query: q}
	for _, r := range raw.Results {
		if opts.MaxResults > 0 && len(out.Results) >= opts.MaxResults {
			break
		}
		out.Results = append(out.Results, models.Result{
			URL:     strings.TrimSpace(r.URL),
			Title:   helpers.PlainText(r.Title),
			Snippet: helpers.PlainText(r.Content),
			Score:   r.Score,
		})
	}
	for _, img := range raw.Images {
		if parsed, ok := decodeImage(img); ok {
			out.Images = append(out.Images, parsed)
		}
	}
	return out, nil
}

// decodeImage accepts both the bare-URL and the {url, description} forms.
func decodeImage(raw json.RawMessage) (models.Image, bool) {
	var url string
	if err := json.Unmarshal(raw, &url); err == nil {
		return models.Image{URL: url}, url != ""
	}
	var obj struct {
		URL         string `json:"url"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil || obj.URL == "" {
		return models.Image{}, false
	}
	return models.Image{URL: obj.URL, Description: helpers.PlainText(obj.Description)}, true
}
