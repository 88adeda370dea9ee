package provider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"testing"
)

type stubModel struct {
	reply string
	err   error
	last  Request
}

func (s *stubModel) Name() string { return "stub" }

func (s *stubModel) GenerateJSON(ctx context.Context, req Request) ([]byte, error) {
	s.last = req
	return []byte(s.reply), s.err
}

func (s *stubModel) StreamText(ctx context.Context, req Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, part := range strings.SplitAfter(s.reply, " ") {
			if !yield(part, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type answer struct {
	Answer string `json:"answer"`
}

func TestStructured(t *testing.T) {
	requireAnswer := func(data []byte) error {
		if !strings.Contains(string(data), `"answer"`) {
			return errors.New("answer is required")
		}
		return nil
	}
	cases := []struct {
		name      string
		reply     string
		callErr   error
		want      string
		malformed bool
	}{
		{name: "plain", reply: `{"answer":"42"}`, want: "42"},
		{name: "fenced", reply: "Sure:\n```json\n{\"answer\":\"fenced\"}\n```", want: "fenced"},
		{name: "no json", reply: "no idea", malformed: true},
		{name: "schema violation", reply: `{"other":1}`, malformed: true},
		{name: "wrong type", reply: `{"answer":5}`, malformed: true},
		{name: "call error", callErr: errors.New("boom")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := &stubModel{reply: tc.reply, err: tc.callErr}
			req := Request{Schema: &Schema{Name: "answer", Validate: requireAnswer}}
			got, err := Structured[answer](context.Background(), m, req)
			switch {
			case tc.callErr != nil:
				if !errors.Is(err, tc.callErr) || errors.Is(err, ErrMalformed) {
					t.Fatalf("expected call error, got %v", err)
				}
			case tc.malformed:
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
			default:
				if err != nil {
					t.Fatalf("Structured: %v", err)
				}
				if got.Answer != tc.want {
					t.Fatalf("answer = %q, want %q", got.Answer, tc.want)
				}
			}
		})
	}
}

func TestCollect(t *testing.T) {
	m := &stubModel{reply: "one two three"}
	got, err := Collect(m.StreamText(context.Background(), Request{}))
	if err != nil || got != "one two three" {
		t.Fatalf("Collect = %q, %v", got, err)
	}

	m.err = errors.New("reset")
	got, err = Collect(m.StreamText(context.Background(), Request{}))
	if err == nil || got != "one two three" {
		t.Fatalf("expected partial text with error, got %q, %v", got, err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"net timeout", timeoutErr{}, true},
		{"rate limited", &Error{Provider: OpenAI, Status: 429}, true},
		{"server error", &Error{Provider: Anthropic, Status: 503}, true},
		{"bad request", &Error{Provider: Gemini, Status: 400}, false},
		{"flagged", &Error{Provider: OpenAI, Temporary: true}, true},
		{"plain", errors.New("nope"), false},
	}
	for _, tc := range cases {
		if got := IsTransient(tc.err); got != tc.want {
			t.Errorf("%s: IsTransient = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Provider: OpenAI, Status: 500}
	if err.Error() != "openai: status 500" {
		t.Fatalf("Error() = %q", err.Error())
	}
	inner := errors.New("quota")
	wrapped := &Error{Provider: Anthropic, Err: inner}
	if !errors.Is(wrapped, inner) {
		t.Fatalf("Unwrap lost the cause")
	}
}

func TestSchemaInstruction(t *testing.T) {
	if SchemaInstruction(nil) != "" {
		t.Fatalf("nil schema should produce no instruction")
	}
	got := SchemaInstruction(&Schema{Name: "x", Doc: []byte(`{"type":"object"}`)})
	if !strings.Contains(got, `{"type":"object"}`) {
		t.Fatalf("instruction missing schema: %s", got)
	}
}
