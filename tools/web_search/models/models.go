package models

// Result is one ranked web hit.
type Result struct {
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score,omitempty"`
}

// Image is an image hit attached to a search response.
type Image struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Response is the payload of a single search call.
type Response struct {
	Query   string   `json:"query"`
	Results []Result `json:"results"`
	Images  []Image  `json:"images,omitempty"`
}

// Options tune a single search call.
type Options struct {
	MaxResults int    `json:"max_results"`
	Depth      string `json:"depth"`
}
