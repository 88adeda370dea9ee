package helpers

import (
	"regexp"
	"strconv"
	"strings"
)

// Citation models one numbered source handed to the report writer.
type Citation struct {
	Index   int
	Title   string
	URL     string
	Snippet string
	Query   string
}

type citationConfig struct {
	maxSnippet int
}

// CitationOption configures citation formatting.
type CitationOption func(*citationConfig)

// WithMaxSnippetLength truncates snippets to n bytes (default 400).
func WithMaxSnippetLength(n int) CitationOption {
	return func(cfg *citationConfig) {
		if n > 0 {
			cfg.maxSnippet = n
		}
	}
}

// FormatCitation renders a single source block:
//
//	[1] Title (domain) <URL>
//	"Snippet"
func FormatCitation(c Citation, opts ...CitationOption) string {
	cfg := citationConfig{maxSnippet: 400}
	for _, opt := range opts {
		opt(&cfg)
	}

	parts := []string{"[" + strconv.Itoa(c.Index) + "]"}
	title := strings.TrimSpace(c.Title)
	if title == "" {
		title = "Untitled"
	}
	parts = append(parts, title)
	if domain := ExtractDomain(c.URL); domain != "" {
		parts = append(parts, "("+domain+")")
	}
	if link := strings.TrimSpace(c.URL); link != "" {
		parts = append(parts, "<"+link+">")
	}
	head := strings.Join(parts, " ")
	if snippet := formatSnippet(c.Snippet, cfg.maxSnippet); snippet != "" {
		return head + "\n" + snippet
	}
	return head
}

// FormatContext renders citations as blank-line separated blocks, grouping
// them under the query that found them.
func FormatContext(citations []Citation, opts ...CitationOption) string {
	if len(citations) == 0 {
		return ""
	}
	var b strings.Builder
	lastQuery := "\x00"
	for i, c := range citations {
		if c.Query != lastQuery && strings.TrimSpace(c.Query) != "" {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("Query: " + strings.TrimSpace(c.Query) + "\n")
		}
		lastQuery = c.Query
		b.WriteString(FormatCitation(c, opts...))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatSnippet(snippet string, limit int) string {
	snippet = strings.Join(strings.Fields(snippet), " ")
	if snippet == "" {
		return ""
	}
	if limit > 0 && len(snippet) > limit {
		snippet = strings.TrimSpace(snippet[:limit]) + "…"
	}
	return `"` + strings.Trim(snippet, `"`) + `"`
}

var citedURLPattern = regexp.MustCompile(`https?://[^\s<>()\[\]"']+`)

// CitedURLs returns the distinct http(s) URLs referenced in text, in order of
// first appearance.
func CitedURLs(text string) []string {
	matches := citedURLPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?")
		key := NormalizeURL(m)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, m)
	}
	return out
}

// UnknownCitations lists URLs cited in text that are not among known, compared
// by NormalizeURL.
func UnknownCitations(text string, known []string) []string {
	allowed := make(map[string]struct{}, len(known))
	for _, k := range known {
		allowed[NormalizeURL(k)] = struct{}{}
	}
	var out []string
	for _, u := range CitedURLs(text) {
		if _, ok := allowed[NormalizeURL(u)]; !ok {
			out = append(out, u)
		}
	}
	return out
}
