package openai_provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mohammad-safakhou/researchchat/provider"
)

// Model calls the OpenAI chat completions API. Structured calls use the
// json_schema response format; validation happens client-side.
type Model struct {
	client      openai.Client
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
		return nil, fmt.Errorf("openai API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("openai model name is required")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	return &Model{
		client:      openai.NewClient(reqOpts...),
		model:       model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
	}, nil
}

func (m *Model) Name() string { return "openai:" + m.model }

func (m *Model) params(req provider.Request) (openai.ChatCompletionNewParams, error) {
	var msgs []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openai.SystemMessage(req.System))
	}
	for _, msg := range req.Messages {
		if msg.Role == provider.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(msg.Content))
			continue
		}
		msgs = append(msgs, openai.UserMessage(msg.Content))
	}
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(m.model),
		Messages: msgs,
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = m.maxTokens
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	} else if m.temperature > 0 {
		params.Temperature = openai.Float(m.temperature)
	}
	if req.Schema != nil && len(req.Schema.Doc) > 0 {
		var schema map[string]any
		if err := json.Unmarshal(req.Schema.Doc, &schema); err != nil {
			return params, fmt.Errorf("decode schema %s: %w", req.Schema.Name, err)
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   req.Schema.Name,
					Schema: schema,
					Strict: openai.Bool(false),
				},
			},
		}
	}
	return params, nil
}

func (m *Model) GenerateJSON(ctx context.Context, req provider.Request) ([]byte, error) {
	params, err := m.params(req)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &provider.Error{Provider: provider.OpenAI, Err: errors.New("no choices returned")}
	}
	return []byte(resp.Choices[0].Message.Content), nil
}

func (m *Model) StreamText(ctx context.Context, req provider.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		params, err := m.params(req)
		if err != nil {
			yield("", err)
			return
		}
		stream := m.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !yield(delta, nil) {
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
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &provider.Error{Provider: provider.OpenAI, Status: apiErr.StatusCode, Err: err}
	}
	return &provider.Error{Provider: provider.OpenAI, Err: err}
}
