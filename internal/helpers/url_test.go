package helpers

import "testing"

func TestNormalizeURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "strips https and www", in: "https://www.Example.com/Path/", want: "example.com/path"},
		{name: "strips http", in: "http://example.com", want: "example.com"},
		{name: "trims whitespace", in: "  https://example.com/a  ", want: "example.com/a"},
		{name: "keeps query", in: "https://example.com/a?b=1", want: "example.com/a?b=1"},
		{name: "keeps other schemes", in: "ftp://example.com/", want: "ftp://example.com"},
		{name: "multiple trailing slashes", in: "example.com///", want: "example.com"},
		{name: "malformed fails open", in: "%%not a url", want: "%%not a url"},
		{name: "empty", in: "", want: ""},
		{name: "nested prefixes", in: "http://www.https://www.example.com", want: "example.com"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.in); got != tt.want {
				t.Fatalf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"https://www.example.com/",
		"HTTP://WWW.EXAMPLE.COM/A/B/",
		"www.www.example.com",
		" https://example.com / ",
		"http://www.https://example.com//",
		"mailto:someone@example.com",
	}
	for _, in := range inputs {
		once := NormalizeURL(in)
		if twice := NormalizeURL(once); twice != once {
			t.Fatalf("NormalizeURL not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeURLCollapsesVariants(t *testing.T) {
	t.Parallel()
	a := NormalizeURL("https://www.example.com/article/")
	b := NormalizeURL("http://example.com/article")
	if a != b {
		t.Fatalf("expected variants to collapse, got %q and %q", a, b)
	}
}

func TestExtractDomain(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"https://www.Example.com:443/a": "example.com",
		"news.example.org/story":        "news.example.org",
		"":                              "",
	}
	for in, want := range tests {
		if got := ExtractDomain(in); got != want {
			t.Fatalf("ExtractDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
