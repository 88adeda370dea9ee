package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net"

	"github.com/mohammad-safakhou/researchchat/internal/helpers"
)

// Client names the supported LLM backends.
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
	Gemini    Client = "google"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    Role
	Content string
}

// Schema describes the JSON document a structured call must return. Doc is a
// JSON Schema forwarded to backends that support constrained decoding;
// Validate, when set, is applied to the decoded reply.
type Schema struct {
	Name     string
	Doc      json.RawMessage
	Validate func([]byte) error
}

// Request is a single model invocation.
type Request struct {
	System      string
	Messages    []Message
	Schema      *Schema
	MaxTokens   int
	Temperature *float64
}

// Model is the language model capability. GenerateJSON returns the raw reply
// of a structured call; StreamText yields text chunks of a free-form reply and
// ends after the first error. A stream cannot be restarted.
type Model interface {
	Name() string
	GenerateJSON(ctx context.Context, req Request) ([]byte, error)
	StreamText(ctx context.Context, req Request) iter.Seq2[string, error]
}

// ErrMalformed marks a reply that is not valid JSON or does not match its schema.
var ErrMalformed = errors.New("malformed model output")

// Structured runs a structured call and decodes the validated reply into T.
func Structured[T any](ctx context.Context, m Model, req Request) (T, error) {
	var out T
	raw, err := m.GenerateJSON(ctx, req)
	if err != nil {
		return out, err
	}
	doc, err := helpers.ExtractJSON(string(raw))
	if err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if req.Schema != nil && req.Schema.Validate != nil {
		if err := req.Schema.Validate([]byte(doc)); err != nil {
			return out, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	}
	if err := json.Unmarshal([]byte(doc), &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}

// Collect drains a text stream into a single string.
func Collect(seq iter.Seq2[string, error]) (string, error) {
	var out []byte
	for chunk, err := range seq {
		if err != nil {
			return string(out), err
		}
		out = append(out, chunk...)
	}
	return string(out), nil
}

// Error wraps backend failures with status metadata.
type Error struct {
	Provider  Client
	Status    int
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "provider error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTransient reports whether an error came from a condition that may clear on
// its own. The research loop does not retry; this feeds logs and metrics.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var pe *Error
	if errors.As(err, &pe) {
		if pe.Temporary {
			return true
		}
		if pe.Status == 429 || (pe.Status >= 500 && pe.Status <= 599) {
			return true
		}
	}
	return false
}

// SchemaInstruction renders the instruction appended to the system prompt for
// backends without native constrained decoding.
func SchemaInstruction(s *Schema) string {
	if s == nil || len(s.Doc) == 0 {
		return ""
	}
	return "Respond with a single JSON object and nothing else. It must validate against this JSON Schema:\n" + string(s.Doc)
}
