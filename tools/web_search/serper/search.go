package serper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/mohammad-safakhou/researchchat/internal/helpers"
	"github.com/mohammad-safakhou/researchchat/tools/web_search/models"
	"github.com/mohammad-safakhou/researchchat/utils"
)

const defaultBaseURL = "https://google.serper.dev"

// Search calls the Serper Google search API. Serper has no depth switch, so
// depth only affects whether image hits are requested alongside results.
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

func (s *Search) Name() string { return "serper" }

type result struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

func (s *Search) Search(ctx context.Context, q string, opts models.Options) (models.Response, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return models.Response{}, errors.New("serper: API key is missing")
	}
	payload := map[string]any{"q": q}
	if opts.MaxResults > 0 {
		payload["num"] = opts.MaxResults
	}
	headers := map[string]string{"X-API-KEY": s.APIKey}

	var raw struct {
		Organic []result `json:"organic"`
		Images  []struct {
			Title    string `json:"title"`
			ImageURL string `json:"imageUrl"`
		} `json:"images"`
	}
	if err := s.HTTP.DoJSON(ctx, http.MethodPost, s.BaseURL+"/search", headers, payload, &raw); err != nil {
		return models.Response{}, fmt.Errorf("serper: %w", err)
	}

	out := models.Response{Query: q}
	for _, r := range raw.Organic {
		if opts.MaxResults > 0 && len(out.Results) >= opts.MaxResults {
			break
		}
		out.Results = append(out.Results, models.Result{
			URL:     strings.TrimSpace(r.Link),
			Title:   helpers.PlainText(r.Title),
			Snippet: helpers.PlainText(r.Snippet),
		})
	}
	if opts.Depth == "advanced" {
		for _, img := range raw.Images {
			if img.ImageURL == "" {
				continue
			}
			out.Images = append(out.Images, models.Image{URL: img.ImageURL, Description: helpers.PlainText(img.Title)})
		}
	}
	return out, nil
}
