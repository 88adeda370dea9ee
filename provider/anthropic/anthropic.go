package anthropic_provider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mohammad-safakhou/researchchat/provider"
)

const defaultMaxTokens = 4096

// Model calls the Anthropic messages API. The JSON schema of structured calls
// is placed in the system prompt.
type Model struct {
	client      anthropic.Client
	model       string
	maxTokens   int
	temperature float64
}

// Options configures a Model.
type Options struct {
	BaseURL     string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

func New(apiKey, model string, opts Options) (*Model, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("anthropic model name is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Model{
		client:      anthropic.NewClient(reqOpts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: opts.Temperature,
	}, nil
}

func (m *Model) Name() string { return "anthropic:" + m.model }

func (m *Model) params(req provider.Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: int64(maxTokens),
	}
	system := req.System
	if instr := provider.SchemaInstruction(req.Schema); instr != "" {
		system = strings.TrimSpace(system + "\n\n" + instr)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, msg := range req.Messages {
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == provider.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	} else if m.temperature > 0 {
		params.Temperature = anthropic.Float(m.temperature)
	}
	return params
}

func (m *Model) GenerateJSON(ctx context.Context, req provider.Request) ([]byte, error) {
	resp, err := m.client.Messages.New(ctx, m.params(req))
	if err != nil {
		return nil, wrapError(err)
	}
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	if content.Len() == 0 {
		return nil, &provider.Error{Provider: provider.Anthropic, Err: errors.New("empty response")}
	}
	return []byte(content.String()), nil
}

func (m *Model) StreamText(ctx context.Context, req provider.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		stream := m.client.Messages.NewStreaming(ctx, m.params(req))
		defer stream.Close()
		for stream.Next() {
			event := stream.Current()
			ev, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent)
			if !ok {
				continue
			}
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				if !yield(delta.Text, nil) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			yield("", wrapError(err))
		}
	}
}

func wrapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &provider.Error{Provider: provider.Anthropic, Status: apiErr.StatusCode, Err: err}
	}
	return &provider.Error{Provider: provider.Anthropic, Err: err}
}
